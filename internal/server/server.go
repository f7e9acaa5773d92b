// Package server exposes the ingestion pipeline over HTTP: document
// upload and status, the resolution review queue, and anomaly results.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/propfin/internal/anomaly"
	"github.com/sells-group/propfin/internal/config"
	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/queue"
	"github.com/sells-group/propfin/internal/storage"
	"github.com/sells-group/propfin/internal/store"
)

// maxUploadBytes caps document uploads. Rent rolls and statements are
// small; anything larger is a mistake.
const maxUploadBytes = 32 << 20

// Server holds the dependencies the HTTP handlers need.
type Server struct {
	store    store.Store
	blobs    storage.Blob
	queue    *queue.Queue
	detector *anomaly.Detector
	cfg      config.ServerConfig
	log      *zap.Logger
}

// New builds the server. The detector may be nil if anomaly runs are
// disabled for this deployment.
func New(st store.Store, blobs storage.Blob, q *queue.Queue, det *anomaly.Detector, cfg config.ServerConfig) *Server {
	return &Server{
		store:    st,
		blobs:    blobs,
		queue:    q,
		detector: det,
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "server")),
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleListDocuments)
		r.Get("/{documentID}", s.handleGetDocument)
	})

	r.Route("/properties", func(r chi.Router) {
		r.Post("/", s.handleCreateProperty)
		r.Get("/", s.handleListProperties)
		r.Get("/{propertyID}/warnings", s.handleListWarnings)
	})

	r.Route("/review", func(r chi.Router) {
		r.Get("/pending", s.handleListPending)
		r.Post("/aliases/{aliasID}/approve", s.handleApproveAlias)
		r.Post("/aliases/{aliasID}/reject", s.handleRejectAlias)
	})

	r.Route("/anomalies", func(r chi.Router) {
		r.Get("/", s.handleListAnomalies)
		r.Post("/run", s.handleRunAnomalies)
	})

	r.Get("/queue/stats", s.handleQueueStats)

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	s.log.Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart document upload, stores the bytes,
// registers the document, and enqueues it for processing.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "multipart form required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty file")
		return
	}

	key := fmt.Sprintf("uploads/%s/%s/%s", time.Now().UTC().Format("2006/01"), uuid.NewString(), header.Filename)
	if err := s.blobs.Put(r.Context(), key, data); err != nil {
		s.internalError(w, "store upload", err)
		return
	}

	doc, err := s.store.CreateDocument(r.Context(), header.Filename, key)
	if err != nil {
		s.internalError(w, "create document", err)
		return
	}
	job, err := s.queue.Enqueue(r.Context(), doc.ID, doc.StorageKey)
	if err != nil {
		s.internalError(w, "enqueue document", err)
		return
	}

	s.log.Info("document accepted",
		zap.String("document_id", doc.ID),
		zap.String("filename", header.Filename),
		zap.Int64("job_id", job.ID),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"document": doc,
		"job_id":   job.ID,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DocumentFilter{
		Status:     model.ProcessingStatus(q.Get("status")),
		Kind:       model.DocumentKind(q.Get("kind")),
		PropertyID: q.Get("property_id"),
		Limit:      intParam(q.Get("limit"), 100),
		Offset:     intParam(q.Get("offset"), 0),
	}
	docs, err := s.store.ListDocuments(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "documentID")
	doc, err := s.store.GetDocument(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	units, err := s.store.ListUnits(r.Context(), docID)
	if err != nil {
		s.internalError(w, "list units", err)
		return
	}
	report, err := s.store.GetLatestReport(r.Context(), docID)
	if err != nil {
		s.internalError(w, "load report", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": doc,
		"units":    units,
		"report":   report,
	})
}

func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		PropertyClass string `json:"property_class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	class := model.PropertyClass(req.PropertyClass)
	if class == "" {
		class = model.ClassStabilized
	}
	prop, err := s.store.CreateProperty(r.Context(), req.Name, class)
	if err != nil {
		s.internalError(w, "create property", err)
		return
	}
	writeJSON(w, http.StatusCreated, prop)
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	props, err := s.store.ListProperties(r.Context())
	if err != nil {
		s.internalError(w, "list properties", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": props})
}

func (s *Server) handleListWarnings(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListValidationWarnings(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		s.internalError(w, "list warnings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.store.ListPendingResolutions(r.Context())
	if err != nil {
		s.internalError(w, "list pending resolutions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) handleApproveAlias(w http.ResponseWriter, r *http.Request) {
	aliasID := chi.URLParam(r, "aliasID")
	if err := s.store.ApproveAlias(r.Context(), aliasID); err != nil {
		writeError(w, http.StatusNotFound, "alias not found")
		return
	}
	s.log.Info("alias approved", zap.String("alias_id", aliasID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleRejectAlias(w http.ResponseWriter, r *http.Request) {
	aliasID := chi.URLParam(r, "aliasID")
	var req struct {
		ReassignTo string `json:"reassign_to"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := s.store.RejectAlias(r.Context(), aliasID, req.ReassignTo); err != nil {
		writeError(w, http.StatusNotFound, "alias not found")
		return
	}
	s.log.Info("alias rejected",
		zap.String("alias_id", aliasID),
		zap.String("reassign_to", req.ReassignTo),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	onlyFlagged := r.URL.Query().Get("flagged") == "true"
	records, err := s.store.ListAnomalies(r.Context(), onlyFlagged)
	if err != nil {
		s.internalError(w, "list anomalies", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"anomalies": records})
}

func (s *Server) handleRunAnomalies(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		writeError(w, http.StatusServiceUnavailable, "anomaly detection not configured")
		return
	}
	var req struct {
		PropertyIDs []string `json:"property_ids"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	summary, err := s.detector.Run(r.Context(), req.PropertyIDs...)
	if err != nil {
		s.internalError(w, "anomaly run", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.internalError(w, "queue stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.log.Error(action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
