package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/ppiankov/deidentify/internal/analyze"
	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/pipeline"
	"github.com/ppiankov/deidentify/internal/table"
)

// DeidentifyRequest is the body of POST /v1/deidentify. Rows[0] is the header.
// Omitted options fall back to the server configuration.
type DeidentifyRequest struct {
	Rows          [][]string `json:"rows"`
	ColumnsToSkip []string   `json:"columns_to_skip,omitempty"`
	LowerCase     *bool      `json:"lower_case,omitempty"`
}

// DeidentifyResponse carries the rewritten rows, header first
type DeidentifyResponse struct {
	Rows       [][]string     `json:"rows"`
	Detections map[string]int `json:"detections"`
	Warnings   []string       `json:"warnings"`
}

// RecognizerInfo describes one registered recognizer
type RecognizerInfo struct {
	Name     string   `json:"name"`
	Language string   `json:"language"`
	Entities []string `json:"entities"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": pipeline.Version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Server) handleRecognizers(w http.ResponseWriter, r *http.Request) {
	infos := make([]RecognizerInfo, 0, s.registry.Len())
	for _, rec := range s.registry.All() {
		infos = append(infos, RecognizerInfo{
			Name:     rec.Name(),
			Language: rec.SupportedLanguage(),
			Entities: rec.SupportedEntities(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"language":    s.language,
		"recognizers": infos,
	})
}

func (s *Server) handleDeidentify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req DeidentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "rows must contain at least a header row")
		return
	}

	lowerCase := s.engine.LowerCase()
	if req.LowerCase != nil {
		lowerCase = *req.LowerCase
	}
	skip := s.engine.SkipSet()
	if req.ColumnsToSkip != nil {
		skip = make(map[string]bool, len(req.ColumnsToSkip))
		for _, name := range req.ColumnsToSkip {
			skip[name] = true
		}
	}

	engine := s.engine.WithOptions(lowerCase, skip)
	result, err := engine.Deidentify(r.Context(), model.TableFromRecords(req.Rows))
	if err != nil {
		status, code := classifyError(err)
		log.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Int("status", status).Msg("deidentify_failed")
		writeError(w, status, code, err.Error())
		return
	}

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, DeidentifyResponse{
		Rows:       result.Table.Records(),
		Detections: result.Stats.ByEntity,
		Warnings:   warnings,
	})
}

// classifyError maps engine errors to HTTP status codes
func classifyError(err error) (int, string) {
	var malformed *table.MalformedTableError
	var failure *analyze.RecognizerFailure
	var mismatch *table.ReassemblyLengthMismatch

	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest, "malformed_table"
	case errors.As(err, &failure):
		return http.StatusBadGateway, "recognizer_failure"
	case errors.As(err, &mismatch):
		return http.StatusInternalServerError, "reassembly_mismatch"
	case errors.Is(err, analyze.ErrNoRecognizers):
		return http.StatusInternalServerError, "no_recognizers"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
