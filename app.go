package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/metcalfc/folio/internal/config"
	"github.com/metcalfc/folio/internal/paginate"
	"github.com/metcalfc/folio/internal/progress"
	"github.com/metcalfc/folio/internal/reader"
	"github.com/metcalfc/folio/internal/remote"
	"github.com/metcalfc/folio/internal/session"
	"github.com/metcalfc/folio/internal/source"
	"github.com/metcalfc/folio/internal/state"
)

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type options struct {
	format      reader.Format
	bookID      int64
	fresh       bool
	configPath  string
	source      string
	showVersion bool
}

func parseArgs(name string, args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "", "Book format: pdf, epub or fb2 (default: detect)")
	bookID := fs.Int64("book-id", 0, "Catalog book id (default: derived from the book content)")
	fresh := fs.Bool("fresh", false, "Ignore saved reading position")
	configPath := fs.String("config", "", "Config file (default: $XDG_CONFIG_HOME/folio/config.yaml)")
	showVersion := fs.Bool("v", false, "Show version information")
	showVersionLong := fs.Bool("version", false, "Show version information")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "%s - book reader for PDF, EPUB and FB2\n\n", name)
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  %s [options] <file|url>\n\n", name)
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  %s book.fb2.zip\n", name)
		fmt.Fprintf(stderr, "  %s -format pdf https://example.com/download?id=42\n", name)
		fmt.Fprintf(stderr, "  %s -book-id 1042 gs://library/books/1042.epub\n", name)
	}
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		bookID:      *bookID,
		fresh:       *fresh,
		configPath:  *configPath,
		showVersion: *showVersion || *showVersionLong,
	}
	if opts.showVersion {
		return opts, nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return options{}, errors.New("expected exactly one book file or URL")
	}
	opts.source = fs.Arg(0)
	if *format != "" {
		if opts.format = reader.ParseFormat(*format); opts.format == reader.FormatUnknown {
			return options{}, fmt.Errorf("unsupported format %q (supported: pdf, epub, fb2)", *format)
		}
	}
	if opts.bookID < 0 {
		return options{}, fmt.Errorf("invalid book id %d", opts.bookID)
	}
	return opts, nil
}

// bookStore is what the hosts need from the local store.
type bookStore interface {
	progress.LocalStore
	session.FormatStore
	Clear(ctx context.Context, bookID int64) error
}

// app wires a Controller to the configured stores, mirror and fetcher.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	ctrl    *session.Controller
	store   bookStore
	req     session.Request
	closers []func() error
}

func newApp(ctx context.Context, opts options, cfg *config.Config, logger *slog.Logger, onStatus func(session.Status)) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	mirror, err := a.openRemote(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := source.NewFetcher(
		source.WithMaxSize(cfg.Source.MaxSize),
		source.WithCredentialsFile(cfg.Source.Credentials),
		source.WithLogger(logger),
	)
	a.closers = append(a.closers, fetcher.Close)

	bookID := opts.bookID
	if bookID == 0 {
		if bookID, err = bookIDFor(opts.source); err != nil {
			a.Close()
			return nil, err
		}
	}
	if opts.fresh {
		if err := store.Clear(ctx, bookID); err != nil {
			logger.Warn("clearing saved position", "book_id", bookID, "error", err)
		}
	}
	a.req = session.Request{BookID: bookID, Source: opts.source, Format: opts.format}

	a.ctrl = session.New(session.Options{
		Fetcher:   fetcher,
		Local:     store,
		Formats:   store,
		Remote:    mirror,
		Paginator: paginate.New(cfg.Paginate.Overlap),
		Tracker: progress.Options{
			Policy: progress.Policy{MinInterval: cfg.Sync.MinInterval, MaxInterval: cfg.Sync.MaxInterval},
			Logger: logger,
		},
		AdapterRetries: cfg.Adapter.Retries,
		RetryDelay:     cfg.Adapter.RetryDelay,
		OnStatus:       onStatus,
		Logger:         logger,
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) (bookStore, error) {
	dir := a.cfg.Store.Dir
	if dir == "" {
		dir = state.StateDir()
	}
	if a.cfg.Store.Backend != "sqlite" {
		return state.NewFileStore(dir)
	}

	path := a.cfg.Store.Path
	if path == "" {
		path = filepath.Join(dir, "folio.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := state.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := db.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	return db, nil
}

// openRemote returns the configured mirror, or nil for offline reading.
func (a *app) openRemote(ctx context.Context) (progress.RemoteStore, error) {
	rc := a.cfg.Remote
	switch {
	case rc.URL != "":
		return remote.NewClient(rc.URL, rc.Token, remote.WithLogger(a.logger)), nil
	case rc.Project != "":
		client, err := remote.NewFirestoreClient(ctx, rc.Project, rc.Credentials)
		if err != nil {
			return nil, err
		}
		fs := remote.NewFirestoreStore(client, rc.Collection)
		a.closers = append(a.closers, fs.Close)
		return fs, nil
	}
	return nil, nil
}

// Close stops the session and releases stores in reverse order.
func (a *app) Close() error {
	var errs []error
	if a.ctrl != nil {
		errs = append(errs, a.ctrl.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// bookIDFor derives a stable id from the content of a local file, or from
// the URI itself for remote sources.
func bookIDFor(src string) (int64, error) {
	if fi, err := os.Stat(src); err == nil && fi.Mode().IsRegular() {
		return state.BookIDForFile(src)
	}
	sum := sha256.Sum256([]byte(src))
	return state.BookIDFromHash(hex.EncodeToString(sum[:]))
}

// renderLines lays a document out as wrapped Markdown lines.
func renderLines(doc *reader.Document, width int) ([]string, error) {
	blocks, err := doc.Blocks()
	if err != nil {
		return nil, err
	}
	return paginate.WrapParagraphs(blocks, width), nil
}

// formatForKey maps the manual format chooser keys.
func formatForKey(key string) reader.Format {
	switch key {
	case "1":
		return reader.FormatPDF
	case "2":
		return reader.FormatEPUB
	case "3":
		return reader.FormatFB2
	}
	return reader.FormatUnknown
}

// titled is implemented by engines that expose book metadata.
type titled interface {
	Title() string
}

func bookTitle(ctrl *session.Controller) string {
	if doc := ctrl.Document(); doc != nil {
		return doc.Title
	}
	if t, ok := ctrl.Engine().(titled); ok && t.Title() != "" {
		return t.Title()
	}
	return reader.DefaultTitle
}
