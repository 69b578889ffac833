// Package web provides the HTTP surface: deck publishing, player pages,
// the live viewer and operational endpoints.
package web

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/slidecast/internal/app/export"
	"github.com/osa030/slidecast/internal/app/live"
	"github.com/osa030/slidecast/internal/app/segment"
	"github.com/osa030/slidecast/internal/domain/slide"
	"github.com/osa030/slidecast/internal/infra/metrics"
	"github.com/osa030/slidecast/internal/infra/store"
)

//go:embed assets/live.html
var livePage []byte

// DefaultMaxDeckBytes bounds a published Markdown document.
const DefaultMaxDeckBytes = 1 << 20

// Options configures the HTTP handler.
type Options struct {
	Segmenter      *segment.Segmenter  // Markdown segmentation (required)
	Store          store.DeckStore     // Deck storage (required)
	Session        *live.Session       // Live session; nil disables /live
	Metrics        *metrics.Collectors // May be nil
	Export         export.Options      // Player defaults
	MaxDeckBytes   int64               // Upload limit (0 means DefaultMaxDeckBytes)
	PresenterToken string              // Token required for deck deletion

	// Connect handler for the presenter service, mounted at ConnectPath.
	ConnectPath    string
	ConnectHandler http.Handler
}

// Server serves decks over HTTP.
type Server struct {
	opts Options
}

// NewHandler builds the router.
func NewHandler(opts Options) http.Handler {
	if opts.MaxDeckBytes <= 0 {
		opts.MaxDeckBytes = DefaultMaxDeckBytes
	}
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Metrics))

	r.Get("/healthz", s.health)
	r.Handle("/metrics", opts.Metrics.Handler())

	r.Route("/api/decks", func(r chi.Router) {
		r.Post("/", s.publishDeck)
		r.Get("/", s.listDecks)
		r.Get("/{id}", s.getDeck)
		r.Delete("/{id}", s.deleteDeck)
	})
	r.Get("/decks/{id}", s.playerPage)
	r.Get("/decks/{id}/bundle.zip", s.bundle)

	if opts.Session != nil {
		r.Get("/live", s.liveViewer)
		r.Get("/live/ws", s.liveSocket)
	}
	if opts.ConnectHandler != nil && opts.ConnectPath != "" {
		r.Handle(strings.TrimRight(opts.ConnectPath, "/")+"/*", opts.ConnectHandler)
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.opts.Session != nil {
		st := s.opts.Session.Controller().State()
		resp["live"] = map[string]any{
			"state":   st.State,
			"viewers": s.opts.Session.ViewerCount(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// publishResponse is returned by POST /api/decks.
type publishResponse struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Slides []slide.Slide `json:"slides"`
}

// publishDeck accepts Markdown (or slide JSON with a JSON content type)
// and stores it. ?base_url= overrides the front matter base URL.
func (s *Server) publishDeck(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxDeckBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var deck *slide.Deck
	if isJSON(r.Header.Get("Content-Type")) {
		slides, err := slide.UnmarshalSlides(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		deck = &slide.Deck{Slides: slides}
	} else {
		deck, err = s.opts.Segmenter.Segment(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if err := deck.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if base := r.URL.Query().Get("base_url"); base != "" {
		deck.Meta.BaseURL = base
	}
	prepared, err := export.PrepareSlides(deck.Slides, deck.Meta.BaseURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.opts.Store.Save(r.Context(), deck)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.opts.Metrics.DeckPublished()
	zlog.Info().Msgf("deck published: id=%s slides=%d", id, deck.Len())

	w.Header().Set("Location", "/decks/"+id)
	writeJSON(w, http.StatusCreated, publishResponse{ID: id, Title: deck.Title(), Slides: prepared})
}

func (s *Server) listDecks(w http.ResponseWriter, r *http.Request) {
	ids, err := s.opts.Store.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

// getDeck returns the deck in the slide JSON wire format.
func (s *Server) getDeck(w http.ResponseWriter, r *http.Request) {
	deck, ok := s.loadDeck(w, r)
	if !ok {
		return
	}
	prepared, err := export.PrepareSlides(deck.Slides, deck.Meta.BaseURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := slide.MarshalSlides(prepared)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) deleteDeck(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, errors.New("presenter token required"))
		return
	}
	if err := s.opts.Store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) playerPage(w http.ResponseWriter, r *http.Request) {
	deck, ok := s.loadDeck(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteHTML(&buf, deck, s.opts.Export.WithMeta(deck.Meta)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) bundle(w http.ResponseWriter, r *http.Request) {
	deck, ok := s.loadDeck(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteBundle(&buf, deck, s.opts.Export.WithMeta(deck.Meta)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
		map[string]string{"filename": export.Filename(export.FormatZip)}))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) liveViewer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(livePage)
}

func (s *Server) loadDeck(w http.ResponseWriter, r *http.Request) (*slide.Deck, bool) {
	deck, err := s.opts.Store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return deck, true
}

func (s *Server) authorized(r *http.Request) bool {
	token := r.Header.Get("X-Presenter-Token")
	return s.opts.PresenterToken != "" && token == s.opts.PresenterToken
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("web: response encode failed")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		zlog.Error().Err(err).Msg("web: request failed")
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDeckNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// requestLogger logs each request and records it in m.
func requestLogger(m *metrics.Collectors) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = routeLabel(rctx.RoutePattern())
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			m.Request(route, code)
			zlog.Debug().Msgf("http: %s %s status=%d bytes=%d duration=%s",
				r.Method, r.URL.Path, code, ww.BytesWritten(), time.Since(start))
		})
	}
}

// routeLabel drops a trailing slash so "/api/decks" and "/api/decks/"
// share one metrics label.
func routeLabel(pattern string) string {
	if len(pattern) > 1 {
		return strings.TrimSuffix(pattern, "/")
	}
	return pattern
}
