package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/latency-monitor/internal/types"
)

// regionFromRequest resolves the reporting region of a submission: the
// region query parameter, then the X-Region header, then "unknown".
// Region labels are opaque; the server never validates them against a list.
func regionFromRequest(r *http.Request) string {
	if region := r.URL.Query().Get("region"); region != "" {
		return region
	}
	if region := r.Header.Get("X-Region"); region != "" {
		return region
	}
	return "unknown"
}

// UploadLatencyRequest is the enveloped batch sent by latency agents.
// The agent's own timestamp is accepted but not trusted; probe rows are
// stamped at insertion time.
type UploadLatencyRequest struct {
	Region    string            `json:"region"`
	Timestamp string            `json:"timestamp"`
	Endpoints []types.ProbeItem `json:"endpoints"`
}

// handleUploadLatency accepts an enveloped batch of probe results from a
// latency agent.
func (s *Server) handleUploadLatency(w http.ResponseWriter, r *http.Request) {
	var req UploadLatencyRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Request body must be a JSON object with region and endpoints", nil)
		return
	}
	if req.Region == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "region is required", nil)
		return
	}
	if len(req.Endpoints) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "endpoints must not be empty", nil)
		return
	}

	result, err := s.ingestService.Ingest(r.Context(), req.Region, req.Endpoints)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, "Batch processed", result)
}

// handleUploadMonitoring accepts a bare array of probe results from a
// monitoring agent, with block1_status attached to gRPC items. The region
// comes from the request rather than the body.
func (s *Server) handleUploadMonitoring(w http.ResponseWriter, r *http.Request) {
	var items []types.ProbeItem
	if err := parseJSONBody(r, &items); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Request body must be a JSON array of probe items", nil)
		return
	}

	result, err := s.ingestService.Ingest(r.Context(), regionFromRequest(r), items)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, "Batch processed", result)
}

// handleGetSummary returns the current network summary.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summaryService.GetSummary(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, "", summary)
}

// handleGetEndpoint returns the detail view of a single endpoint. The URL
// path segment may contain slashes; mux captures the full remainder.
func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	url := mux.Vars(r)["url"]
	if url == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Endpoint URL is required", nil)
		return
	}

	details, err := s.detailService.GetEndpoint(r.Context(), url)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, "", details)
}
