package remote

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/metcalfc/folio/internal/progress"
)

const paramBookID = "bookId"

// TokenVerifier reports whether a bearer token is accepted.
type TokenVerifier func(token string) bool

// NewHandler serves the reading-history API from store. A nil verify
// disables authentication.
func NewHandler(store Store, verify TokenVerifier, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		if verify != nil {
			r.Use(bearerAuth(verify))
		}
		r.Route("/profile/reading-history/{"+paramBookID+"}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.put)
		})
	})
	return r
}

type handler struct {
	store  Store
	logger *slog.Logger
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	var u progress.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&u); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if u.LastPage < 1 || u.ReadPercentage < 0 || u.ReadPercentage > 100 {
		respondWithError(w, http.StatusBadRequest, "lastPage must be >= 1 and readPercentage within 0..100")
		return
	}
	u.BookID = bookID

	if err := h.store.PushProgress(r.Context(), u); err != nil {
		h.logger.Error("storing reading history", "book_id", bookID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "could not store progress")
		return
	}
	hist, _, err := h.store.History(r.Context(), bookID)
	if err != nil {
		h.logger.Error("reading back history", "book_id", bookID, "error", err)
		hist = progress.History{Update: u}
	}
	respondWithJSON(w, http.StatusOK, recordFrom(hist))
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	hist, found, err := h.store.History(r.Context(), bookID)
	if err != nil {
		h.logger.Error("loading reading history", "book_id", bookID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "could not load progress")
		return
	}
	if !found {
		respondWithError(w, http.StatusNotFound, "no reading history for book")
		return
	}
	respondWithJSON(w, http.StatusOK, recordFrom(hist))
}

func bookIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, paramBookID), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid book id")
		return 0, false
	}
	return id, true
}

func bearerAuth(verify TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || !verify(token) {
				respondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}
