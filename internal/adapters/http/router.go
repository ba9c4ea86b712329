package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
	"github.com/ValentinOzeel/RAGalactic/internal/core/ports"
	"github.com/ValentinOzeel/RAGalactic/internal/observability/metrics"
)

type Options struct {
	Service          string
	MaxUploadBytes   int64
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	ingestor ports.DocumentIngestor
	catalog  ports.DocumentCatalog
	sessions *SessionManager

	serverMetrics *metrics.HTTPServerMetrics
	ingestMetrics *metrics.IngestMetrics
	opts          Options
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	catalog ports.DocumentCatalog,
	sessions *SessionManager,
	serverMetrics *metrics.HTTPServerMetrics,
	ingestMetrics *metrics.IngestMetrics,
	opts Options,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.BackpressureWait <= 0 {
		opts.BackpressureWait = 100 * time.Millisecond
	}
	return &Router{
		ingestor:      ingestor,
		catalog:       catalog,
		sessions:      sessions,
		serverMetrics: serverMetrics,
		ingestMetrics: ingestMetrics,
		opts:          opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.serverMetrics != nil {
		mux.Handle("GET /metrics", rt.serverMetrics.Handler())
	}

	mux.HandleFunc("POST /v1/users/{user}/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/users/{user}/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/users/{user}/tags", rt.listTags)
	mux.HandleFunc("POST /v1/users/{user}/documents/filter", rt.filterDocuments)

	mux.HandleFunc("POST /v1/users/{user}/sessions", rt.createSession)
	mux.HandleFunc("PUT /v1/users/{user}/sessions/{session}/config", rt.configureSession)
	mux.HandleFunc("PUT /v1/users/{user}/sessions/{session}/documents", rt.selectSessionDocuments)
	mux.HandleFunc("POST /v1/users/{user}/sessions/{session}/turns", rt.runTurn)
	mux.HandleFunc("GET /v1/users/{user}/sessions/{session}/history", rt.sessionHistory)
	mux.HandleFunc("DELETE /v1/users/{user}/sessions/{session}", rt.destroySession)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.serverMetrics != nil {
		handler = rt.serverMetrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")

	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	start := time.Now()
	if rt.ingestMetrics != nil {
		rt.ingestMetrics.StartIngest()
	}
	handle, created, err := rt.ingestor.IngestNew(r.Context(), userID, fileHeader.Filename, r.FormValue("tags"), file)
	if rt.ingestMetrics != nil {
		rt.ingestMetrics.FinishIngest(rt.opts.Service, time.Since(start), err)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	state := "ingested"
	if !created {
		if rt.ingestMetrics != nil {
			rt.ingestMetrics.RecordDedupHit(rt.opts.Service)
		}
		status = http.StatusOK
		state = "already_ingested"
	}
	writeJSON(w, status, map[string]any{
		"status":     state,
		"file_name":  handle.FileNames[0],
		"file_names": handle.FileNames,
	})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := rt.catalog.ListDocuments(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": names})
}

func (rt *Router) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := rt.catalog.DistinctTags(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (rt *Router) filterDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags string `json:"tags"`
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	// Tags use the same delimited syntax as the upload form field.
	tags, err := domain.ParseTags(req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}

	userID := r.PathValue("user")
	var names []string
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "", "all":
		names, err = rt.catalog.FilterAll(r.Context(), userID, tags)
	case "any":
		names, err = rt.catalog.FilterAny(r.Context(), userID, tags)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be 'all' or 'any'"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": names})
}

type sessionRequest struct {
	Mode      string   `json:"mode"`
	Policy    string   `json:"policy"`
	Streaming bool     `json:"streaming"`
	TopK      int      `json:"top_k"`
	FileNames []string `json:"file_names"`
}

func (req sessionRequest) config() domain.SessionConfig {
	return domain.SessionConfig{
		Mode:      domain.Mode(req.Mode),
		Policy:    domain.KnowledgePolicy(req.Policy),
		Streaming: req.Streaming,
		TopK:      req.TopK,
	}
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	cfg := req.config()
	if err := cfg.Validate(); err != nil {
		writeError(w, err)
		return
	}

	handle, err := rt.resolveHandle(r, userID, req.FileNames)
	if err != nil {
		writeError(w, err)
		return
	}

	sessionID, err := rt.sessions.Create(userID, handle, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"file_names": handle.FileNames,
	})
}

// resolveHandle validates an explicit selection through the registry; an empty
// selection means the whole partition.
func (rt *Router) resolveHandle(r *http.Request, userID string, fileNames []string) (*domain.RetrieverHandle, error) {
	if len(fileNames) > 0 {
		return rt.ingestor.LoadExisting(r.Context(), userID, fileNames)
	}
	return &domain.RetrieverHandle{UserID: userID}, nil
}

func (rt *Router) configureSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := rt.sessions.Configure(r.PathValue("user"), r.PathValue("session"), req.config()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

func (rt *Router) selectSessionDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")

	var req struct {
		FileNames []string `json:"file_names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	handle, err := rt.resolveHandle(r, userID, req.FileNames)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rt.sessions.SelectDocuments(userID, r.PathValue("session"), handle); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "selected",
		"file_names": handle.FileNames,
	})
}

func (rt *Router) runTurn(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	sessionID := r.PathValue("session")

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	cfg, err := rt.sessions.Config(userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	if cfg.Streaming {
		rt.runStreamingTurn(w, r, userID, sessionID, req.Text)
		return
	}

	start := time.Now()
	answer, cfg, err := rt.sessions.RunTurn(r.Context(), userID, sessionID, req.Text, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.recordTurn(cfg, answer, time.Since(start))

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":         answer.Text,
		"sources":        answer.Sources,
		"used_retrieval": answer.UsedRetrieval,
	})
}

func (rt *Router) runStreamingTurn(w http.ResponseWriter, r *http.Request, userID, sessionID, text string) {
	stream, err := newSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	start := time.Now()
	answer, cfg, err := rt.sessions.RunTurn(r.Context(), userID, sessionID, text, stream.emit)
	if err != nil {
		if stream.started {
			stream.emitError(err.Error())
			stream.done()
			return
		}
		writeError(w, err)
		return
	}
	rt.recordTurn(cfg, answer, time.Since(start))
	stream.done()
}

func (rt *Router) recordTurn(cfg domain.SessionConfig, answer *domain.Answer, duration time.Duration) {
	if rt.serverMetrics == nil || answer == nil {
		return
	}
	refused := answer.Text == domain.RefusalAnswer
	rt.serverMetrics.RecordTurn(rt.opts.Service, string(cfg.Mode), string(cfg.Policy), len(answer.Sources), refused, duration)
}

func (rt *Router) sessionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := rt.sessions.History(r.PathValue("user"), r.PathValue("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (rt *Router) destroySession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Destroy(r.PathValue("user"), r.PathValue("session")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
