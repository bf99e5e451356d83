package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/raaihank/llm-anonymizer/internal/strategy"
	"go.uber.org/zap"
)

type anonymizeRequest struct {
	Text string `json:"text"`
	anonymizer.Options
}

type detectRequest struct {
	Text     string   `json:"text"`
	Patterns []string `json:"patterns,omitempty"`
}

type addPatternRequest struct {
	Name          string `json:"name"`
	Pattern       string `json:"pattern"`
	PatternSource string `json:"patternSource"`
	Description   string `json:"description"`
	Class         string `json:"sensitivityClass"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":             "llm-anonymizer",
		"version":          s.version,
		"uptime":           time.Since(s.started).Round(time.Second).String(),
		"patterns_count":   len(s.pipeline.ListPatterns()),
		"default_strategy": s.pipeline.Defaults().DefaultStrategy,
		"strategies":       []string{strategy.Mask, strategy.Hash, strategy.HMAC, strategy.Replace, strategy.Remove},
	}
	if s.wsHub != nil {
		info["websocket_clients"] = s.wsHub.GetStats().ActiveConnections
	}
	writeJSON(w, http.StatusOK, info)
}

// handleAnonymize anonymizes the request text
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	defaults := s.pipeline.Defaults()
	req := anonymizeRequest{Options: defaults}
	req.SelectedPatterns = nil
	req.Overrides = nil
	if !s.decode(w, r, &req) {
		return
	}
	if req.SelectedPatterns == nil {
		req.SelectedPatterns = defaults.SelectedPatterns
	}
	req.Overrides = mergeOverrides(defaults.Overrides, req.Overrides)

	result, err := s.pipeline.Anonymize(req.Text, req.Options)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDetect reports sensitive data in the request text
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if !s.decode(w, r, &req) {
		return
	}

	report, err := s.pipeline.DetectSensitiveData(req.Text, req.Patterns...)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleListPatterns lists registered patterns
func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	list := s.pipeline.ListPatterns()
	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": list,
		"count":    len(list),
	})
}

// handleGetPattern returns one pattern
func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, ok := s.pipeline.Registry().Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "pattern not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, patterns.Info{
		Name:        p.Name,
		Source:      p.Source,
		Description: p.Description,
		Class:       p.Class,
	})
}

// handleAddPattern registers or overwrites a pattern
func (s *Server) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	var req addPatternRequest
	if !s.decode(w, r, &req) {
		return
	}

	source := req.PatternSource
	if source == "" {
		source = req.Pattern
	}

	res := s.pipeline.AddPattern(patterns.Definition{
		Name:        req.Name,
		Source:      source,
		Description: req.Description,
		Class:       patterns.Class(req.Class),
	})

	status := http.StatusCreated
	switch {
	case !res.Success:
		status = http.StatusBadRequest
	case res.Overwritten:
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// handleRemovePattern removes a pattern
func (s *Server) handleRemovePattern(w http.ResponseWriter, r *http.Request) {
	res := s.pipeline.RemovePattern(mux.Vars(r)["name"])

	status := http.StatusOK
	if !res.Success {
		status = http.StatusNotFound
	}
	writeJSON(w, status, res)
}

// handleAuditStats returns aggregate audit statistics
func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.audit.GetStats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAuditRuns returns the latest audit runs
func (s *Server) handleAuditRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	runs, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// decode reads a JSON body into v, writing the error response on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		}
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.WithRequestID(RequestIDFromContext(r.Context())).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// mergeOverrides layers request overrides over the configured ones
func mergeOverrides(defaults, request map[string]strategy.Override) map[string]strategy.Override {
	if len(defaults) == 0 {
		return request
	}
	merged := make(map[string]strategy.Override, len(defaults)+len(request))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range request {
		merged[k] = v
	}
	return merged
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
