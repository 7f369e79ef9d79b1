// Package httpapi serves capture sessions over HTTP: trigger a capture,
// look up past sessions, and download artifact bytes.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/longshot"
	"github.com/hazyhaar/longshot/internal/export"
	"github.com/hazyhaar/longshot/internal/store"
)

// Capturer is the capture capability the API fronts.
type Capturer interface {
	Capture(ctx context.Context, url string) (*longshot.Result, error)
	// Store returns the artifact store, or nil when persistence is off.
	Store() *store.Store
}

// Server is the HTTP delivery surface.
type Server struct {
	cap    Capturer
	logger *slog.Logger
}

// NewServer creates a Server around a capturer.
func NewServer(cap Capturer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cap: cap, logger: logger}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(SecurityHeaders(DefaultHeaders()))
	r.Use(MaxJSONBody(64 * 1024))
	r.Use(RequestID(s.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/capture", s.handleCapture)
	r.Get("/api/sessions/{id}", s.handleGetSession)
	r.Get("/api/sessions/{id}/pdf", s.handleSessionPDF)
	r.Get("/api/artifacts/{id}", s.handleGetArtifact)

	return r
}

type captureRequest struct {
	URL string `json:"url"`
}

type sessionResponse struct {
	Session   *store.Session    `json:"session"`
	Artifacts []*store.Artifact `json:"artifacts"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}

	res, err := s.cap.Capture(r.Context(), req.URL)
	if err != nil {
		GetLogger(r.Context()).Error("capture failed", "url", req.URL, "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	resp := map[string]any{
		"session_id": res.SessionID,
		"url":        res.URL,
		"origin":     res.Origin,
		"tile_count": res.TileCount,
		"warnings":   res.Warnings,
	}

	// Persisted sessions report store artifact ids so clients can fetch
	// bytes later; otherwise only inline metadata is available.
	if st := s.cap.Store(); st != nil {
		arts, err := st.ListArtifacts(r.Context(), res.SessionID)
		if err == nil {
			resp["artifacts"] = arts
		}
	} else {
		metas := make([]map[string]any, 0, len(res.Artifacts))
		for _, a := range res.Artifacts {
			metas = append(metas, map[string]any{
				"filename":  a.Filename,
				"mime":      a.MIME,
				"part":      a.Part,
				"width":     a.Width,
				"height":    a.Height,
				"bytes":     len(a.Bytes),
				"oversized": a.Oversized,
			})
		}
		resp["artifacts"] = metas
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	st := s.cap.Store()
	if st == nil {
		writeError(w, http.StatusNotImplemented, errors.New("persistence is not configured"))
		return
	}

	id := chi.URLParam(r, "id")
	sess, err := st.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	arts, err := st.ListArtifacts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Artifacts: arts})
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	st := s.cap.Store()
	if st == nil {
		writeError(w, http.StatusNotImplemented, errors.New("persistence is not configured"))
		return
	}

	a, err := st.GetArtifact(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", a.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(a.Bytes)
}

// handleSessionPDF bundles a session's artifacts into one PDF, one page per
// artifact, in part order.
func (s *Server) handleSessionPDF(w http.ResponseWriter, r *http.Request) {
	st := s.cap.Store()
	if st == nil {
		writeError(w, http.StatusNotImplemented, errors.New("persistence is not configured"))
		return
	}

	id := chi.URLParam(r, "id")
	metas, err := st.ListArtifacts(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && len(metas) == 0) {
		writeError(w, http.StatusNotFound, errors.New("no artifacts for session"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	images := make([][]byte, 0, len(metas))
	for _, m := range metas {
		full, err := st.GetArtifact(r.Context(), m.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		images = append(images, full.Bytes)
	}

	var buf bytes.Buffer
	if err := export.PDF(&buf, images); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
