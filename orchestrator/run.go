// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"creditlens/platform/connectors/base"
	"creditlens/platform/orchestrator/aggregate"
	"creditlens/platform/orchestrator/bureau"
	"creditlens/platform/orchestrator/history"
	"creditlens/platform/orchestrator/tools"
	"creditlens/platform/shared/config"
	"creditlens/platform/shared/logger"
)

const (
	serviceName    = "creditlens-orchestrator"
	serviceVersion = "1.0.0"

	// maxUploadBytes bounds one uploaded bureau document.
	maxUploadBytes = 32 << 20
	// maxRequestBytes bounds JSON request bodies.
	maxRequestBytes = 1 << 20
)

// DeterministicRunner runs the deterministic strategy.
type DeterministicRunner interface {
	Execute(ctx context.Context) (*history.RunRecord, error)
}

// ConversationalRunner runs the conversational strategy and its direct
// invocation path.
type ConversationalRunner interface {
	Execute(ctx context.Context, requirements []string) (*history.RunRecord, error)
	ExecuteDirect(ctx context.Context) (*history.RunRecord, error)
}

// HealthCheck reports whether one component is usable.
type HealthCheck func(ctx context.Context) bool

// Server holds the handlers' dependencies. Conversation may be nil when the
// reasoning provider has no function calling; History may be nil.
type Server struct {
	Pipeline       DeterministicRunner
	Conversation   ConversationalRunner
	Registry       *tools.Registry
	Documents      base.DocumentStore
	DocumentPrefix string
	SummaryKey     string
	RequireSummary bool
	History        history.Store
	Metrics        *MetricsCollector
	// Components are reported by /health in addition to the built-in checks.
	Components  map[string]HealthCheck
	CORSOrigins []string
	JWTSecret   []byte
	// Gatherer backs /prometheus; nil means the default registry.
	Gatherer prometheus.Gatherer

	log *logger.Logger
}

// CheckPreconditions verifies that the persisted summary needed by the
// single-tool routes exists, when it is required.
func (s *Server) CheckPreconditions(ctx context.Context) error {
	if !s.RequireSummary {
		return nil
	}
	if s.Documents == nil {
		return fmt.Errorf("summary %s is required but no document store is configured", s.summaryKey())
	}
	if _, err := bureau.LoadSummary(ctx, s.Documents, s.summaryKey()); err != nil {
		return fmt.Errorf("summary precondition failed: %w", err)
	}
	return nil
}

// Router builds the HTTP handler with CORS and, when a JWT secret is set,
// bearer authentication.
func (s *Server) Router() http.Handler {
	if s.log == nil {
		s.log = logger.New("http")
	}
	if s.Metrics == nil {
		s.Metrics = NewMetricsCollector(nil)
	}

	r := mux.NewRouter()
	r.Use(s.recoverPanics)

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/prometheus", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := r.NewRoute().Subrouter()
	if len(s.JWTSecret) > 0 {
		api.Use(bearerAuth(s.JWTSecret))
	}

	api.HandleFunc("/run-smart-controller", s.smartControllerHandler).Methods("POST")
	api.HandleFunc("/run-sk-smart-controller", s.conversationalHandler).Methods("POST")
	api.HandleFunc("/run-sk-credit-analysis", s.creditAnalysisHandler).Methods("POST")
	api.HandleFunc("/run-fraud", s.singleToolHandler(tools.Fraud)).Methods("POST")
	api.HandleFunc("/run-compliance", s.singleToolHandler(tools.Compliance)).Methods("POST")
	api.HandleFunc("/run-explainability", s.singleToolHandler(tools.Explainability)).Methods("POST")

	api.HandleFunc("/api/v1/runs", s.listRunsHandler).Methods("GET")
	api.HandleFunc("/api/v1/runs/{id}", s.getRunHandler).Methods("GET")
	api.HandleFunc("/api/v1/documents", s.uploadDocumentHandler).Methods("POST")
	api.HandleFunc("/api/v1/documents", s.listDocumentsHandler).Methods("GET")

	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// Run loads the configuration at configPath, builds every component and
// serves until the listener fails.
func Run(configPath string) error {
	log.Println("Starting CreditLens Orchestrator...")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	comps, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	server := comps.Server(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err := server.CheckPreconditions(ctx); err != nil {
		return err
	}

	addr := ":" + cfg.Server.Port
	log.Printf("[Orchestrator] Listening on %s (reasoning=%s storage=%s history=%s)",
		addr, cfg.Reasoning.Provider, cfg.Storage.Backend, cfg.History.Driver)

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) smartControllerHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Pipeline.Execute(r.Context())
	s.respondRun(w, rec, err, false)
}

type conversationalRequest struct {
	Requirements []string `json:"requirements"`
}

func (s *Server) conversationalHandler(w http.ResponseWriter, r *http.Request) {
	if s.Conversation == nil {
		sendErrorResponse(w, "conversational strategy requires a reasoning provider with function calling", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		sendErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	var req conversationalRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	rec, err := s.Conversation.Execute(r.Context(), req.Requirements)
	s.respondRun(w, rec, err, false)
}

func (s *Server) creditAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	if s.Conversation == nil {
		sendErrorResponse(w, "direct invocation requires the conversational orchestrator", http.StatusInternalServerError)
		return
	}
	rec, err := s.Conversation.ExecuteDirect(r.Context())
	s.respondRun(w, rec, err, true)
}

// respondRun records rec and writes its aggregate, wrapped as
// {"analysis": ...} when wrap is set.
func (s *Server) respondRun(w http.ResponseWriter, rec *history.RunRecord, err error, wrap bool) {
	s.Metrics.RecordRun(rec)
	if rec != nil {
		w.Header().Set("X-Run-ID", rec.ID)
	}
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var body interface{} = rec.Result
	if wrap {
		body = map[string]interface{}{"analysis": rec.Result}
	}
	sendJSON(w, http.StatusOK, body)
}

func (s *Server) singleToolHandler(id tools.ToolID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec := history.Begin(history.StrategySingleTool, []string{id.Slot()})

		var summary string
		err := errors.New("no document store is configured")
		if s.Documents != nil {
			summary, err = bureau.LoadSummary(ctx, s.Documents, s.summaryKey())
		}
		if err != nil {
			s.finishSingle(ctx, rec, nil, err)
			sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
			return
		}

		start := time.Now()
		result := s.Registry.Run(ctx, id, summary)
		rec.Step(id.Function(), start, string(result.Status))

		agg := &aggregate.Result{}
		agg.Set(id, &result)
		run := s.finishSingle(ctx, rec, agg, nil)
		w.Header().Set("X-Run-ID", run.ID)
		sendJSON(w, http.StatusOK, result)
	}
}

func (s *Server) finishSingle(ctx context.Context, r *history.Recorder, result *aggregate.Result, err error) *history.RunRecord {
	rec := r.Finish(result, err)
	s.Metrics.RecordRun(rec)
	if s.History != nil {
		if serr := s.History.Save(ctx, rec); serr != nil {
			s.log.ErrorWithCause(rec.ID, "Failed to save run record", serr, nil)
		}
	}
	return rec
}

func (s *Server) getRunHandler(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		sendErrorResponse(w, "run history is not configured", http.StatusNotFound)
		return
	}
	id := mux.Vars(r)["id"]
	rec, err := s.History.Get(r.Context(), id)
	if errors.Is(err, history.ErrRunNotFound) {
		sendErrorResponse(w, fmt.Sprintf("run %s not found", id), http.StatusNotFound)
		return
	}
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, rec)
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		sendJSON(w, http.StatusOK, map[string]interface{}{"runs": []*history.RunRecord{}})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.History.List(r.Context(), limit)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*history.RunRecord{}
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) uploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if s.Documents == nil {
		sendErrorResponse(w, "document store is not configured", http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		sendErrorResponse(w, "Invalid multipart upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		sendErrorResponse(w, "Missing form field \"file\"", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	ext := strings.ToLower(path.Ext(name))
	if !supportedExtension(ext) {
		sendErrorResponse(w, fmt.Sprintf("unsupported document type %q", ext), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		sendErrorResponse(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if t := mime.TypeByExtension(ext); t != "" {
			contentType = t
		}
	}

	key := s.DocumentPrefix + name
	if err := s.Documents.Put(r.Context(), key, data, contentType); err != nil {
		s.log.ErrorWithCause("", "Document upload failed", err, map[string]interface{}{"key": key})
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("", "Document uploaded", map[string]interface{}{
		"key":     key,
		"size":    len(data),
		"subject": SubjectFromContext(r.Context()),
	})

	sendJSON(w, http.StatusCreated, base.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	})
}

func (s *Server) listDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if s.Documents == nil {
		sendErrorResponse(w, "document store is not configured", http.StatusInternalServerError)
		return
	}
	objects, err := s.Documents.List(r.Context(), s.DocumentPrefix)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	docs := base.Newest(objects, 0, bureau.SupportedExtensions...)
	if docs == nil {
		docs = []base.ObjectInfo{}
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := map[string]bool{
		"deterministic_strategy":  s.Pipeline != nil,
		"conversational_strategy": s.Conversation != nil,
		"tool_registry":           s.Registry != nil,
	}
	if s.Documents != nil {
		status, err := s.Documents.HealthCheck(ctx)
		components["document_store"] = err == nil && status != nil && status.Healthy
	}
	for name, check := range s.Components {
		components[name] = check(ctx)
	}

	status := "healthy"
	for _, ok := range components {
		if !ok {
			status = "degraded"
			break
		}
	}

	health := map[string]interface{}{
		"status":     status,
		"service":    serviceName,
		"version":    serviceVersion,
		"timestamp":  time.Now().UTC(),
		"components": components,
		"metrics":    s.Metrics.GetMetrics(),
	}
	sendJSON(w, http.StatusOK, health)
}

func (s *Server) summaryKey() string {
	if s.SummaryKey == "" {
		return bureau.DefaultSummaryKey
	}
	return s.SummaryKey
}

func supportedExtension(ext string) bool {
	for _, e := range bureau.SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	sendJSON(w, statusCode, map[string]string{"error": message})
}
