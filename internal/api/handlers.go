package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/phishdash/internal/ipfilter"
	"github.com/foxzi/phishdash/internal/ratelimit"
	"github.com/foxzi/phishdash/internal/results"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Workspaces int    `json:"workspaces"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// WorkspaceSummary is one entry of GET /api/v1/workspaces
type WorkspaceSummary struct {
	ID        string     `json:"id"`
	Campaigns int        `json:"campaigns"`
	Selected  int        `json:"selected"`
	Loading   bool       `json:"loading"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// DashboardResponse is the response for GET /api/v1/workspaces/{id}
type DashboardResponse struct {
	ID        string                `json:"id"`
	Campaigns []results.Campaign    `json:"campaigns"`
	Counters  results.Counters      `json:"counters"`
	Selection results.SelectionMode `json:"selection"`
	Loading   bool                  `json:"loading"`
	FetchedAt *time.Time            `json:"fetched_at,omitempty"`
	LastError string                `json:"last_error,omitempty"`
}

// VisualsResponse is the funnel series plotted by the dashboard graphs
type VisualsResponse struct {
	Labels []string `json:"labels"`
	Series []int    `json:"series"`
}

// ToggleRequest is the request body for the selection endpoints
type ToggleRequest struct {
	Checked *bool `json:"checked"`
}

// EmailResponse is the response for GET .../results/{resultID}/email
type EmailResponse struct {
	ResultID int64  `json:"result_id"`
	Email    string `json:"email"`
}

// CampaignResponse is the response for GET .../results/{resultID}/campaign
type CampaignResponse struct {
	ResultID   int64 `json:"result_id"`
	CampaignID int64 `json:"campaign_id"`
}

var funnelLabels = []string{
	results.VirtualUnopened,
	string(results.StatusOpened),
	string(results.StatusClicked),
	string(results.StatusDownloaded),
	string(results.StatusSubmitted),
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    Version,
		Uptime:     time.Since(s.startTime).String(),
		Workspaces: len(s.registry.Workspaces()),
	})
}

// handleWorkspaces handles GET /api/v1/workspaces
func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.Workspaces()
	summaries := make([]WorkspaceSummary, 0, len(ids))
	for _, id := range ids {
		agg, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		st := agg.Snapshot()
		summaries = append(summaries, WorkspaceSummary{
			ID:        id,
			Campaigns: len(st.Campaigns),
			Selected:  st.Selection.Len(),
			Loading:   st.Loading,
			FetchedAt: fetchedAt(st),
			LastError: st.LastError,
		})
	}
	s.sendJSON(w, http.StatusOK, summaries)
}

// handleDashboard handles GET /api/v1/workspaces/{id}
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	st := agg.Snapshot()

	campaigns := st.Campaigns
	if campaigns == nil {
		campaigns = []results.Campaign{}
	}
	s.sendJSON(w, http.StatusOK, DashboardResponse{
		ID:        agg.WorkspaceID(),
		Campaigns: campaigns,
		Counters:  st.Counters,
		Selection: st.Mode(),
		Loading:   st.Loading,
		FetchedAt: fetchedAt(st),
		LastError: st.LastError,
	})
}

// handleCounters handles GET /api/v1/workspaces/{id}/counters
func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, agg.Snapshot().Counters)
}

// handleVisuals handles GET /api/v1/workspaces/{id}/visuals
func (s *Server) handleVisuals(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, VisualsResponse{
		Labels: funnelLabels,
		Series: agg.Snapshot().Counters.Funnel(),
	})
}

// handleResults handles GET /api/v1/workspaces/{id}/results
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	filtered := agg.Snapshot().Filtered
	if filtered == nil {
		filtered = []results.Result{}
	}
	s.sendJSON(w, http.StatusOK, filtered)
}

// handleForms handles GET /api/v1/workspaces/{id}/forms
func (s *Server) handleForms(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, agg.Snapshot().FormRows())
}

// handleDrilldown handles GET /api/v1/workspaces/{id}/drilldown/{status}
func (s *Server) handleDrilldown(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	label := chi.URLParam(r, "status")
	s.sendJSON(w, http.StatusOK, results.Drilldown(agg.Snapshot().Filtered, label))
}

// handleResultEmail handles GET /api/v1/workspaces/{id}/results/{resultID}/email
func (s *Server) handleResultEmail(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	resultID, ok := s.int64Param(w, r, "resultID")
	if !ok {
		return
	}

	email, err := agg.Snapshot().ResultEmail(resultID)
	if err != nil {
		s.sendLookupError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, EmailResponse{ResultID: resultID, Email: email})
}

// handleResultCampaign handles GET /api/v1/workspaces/{id}/results/{resultID}/campaign
func (s *Server) handleResultCampaign(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	resultID, ok := s.int64Param(w, r, "resultID")
	if !ok {
		return
	}

	campaignID, err := agg.Snapshot().CampaignIDForResult(resultID)
	if err != nil {
		s.sendLookupError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, CampaignResponse{ResultID: resultID, CampaignID: campaignID})
}

// handleToggleAll handles PUT /api/v1/workspaces/{id}/selection
func (s *Server) handleToggleAll(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	checked, ok := s.decodeToggle(w, r)
	if !ok {
		return
	}

	if err := agg.ToggleAll(r.Context(), checked); err != nil {
		s.sendCommandError(w, err)
		return
	}
	s.handleDashboard(w, r)
}

// handleToggleOne handles PUT /api/v1/workspaces/{id}/selection/{campaignID}
func (s *Server) handleToggleOne(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	campaignID, ok := s.int64Param(w, r, "campaignID")
	if !ok {
		return
	}
	checked, ok := s.decodeToggle(w, r)
	if !ok {
		return
	}

	if err := agg.ToggleOne(r.Context(), campaignID, checked); err != nil {
		s.sendCommandError(w, err)
		return
	}
	s.handleDashboard(w, r)
}

// handleRefresh handles POST /api/v1/workspaces/{id}/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}
	// a stopped workspace must not use up a refresh slot
	if agg.Stopped() {
		s.sendCommandError(w, results.ErrStopped)
		return
	}
	if !s.allowRefresh(w, r) {
		return
	}
	if err := agg.Refresh(r.Context()); err != nil {
		s.sendCommandError(w, err)
		return
	}
	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// allowRefresh applies refresh limits and writes 429 when one is exceeded
func (s *Server) allowRefresh(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}

	req := &ratelimit.Request{Workspace: chi.URLParam(r, "id")}
	if ip, ok := ipfilter.ClientIP(r); ok {
		req.Client = ip.String()
	}

	res, err := s.limiter.Allow(r.Context(), req)
	if err != nil {
		s.sendCommandError(w, err)
		return false
	}
	if !res.Allowed {
		s.logger.Warn("refresh rate limited",
			"workspace", req.Workspace,
			"client", req.Client,
			"level", res.DeniedBy,
			"retry_after", res.RetryAfter,
		)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		s.sendError(w, http.StatusTooManyRequests, "Refresh rate limit exceeded ("+string(res.DeniedBy)+")")
		return false
	}
	return true
}

func (s *Server) aggregator(w http.ResponseWriter, r *http.Request) (*results.Aggregator, bool) {
	agg, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "Workspace not found")
		return nil, false
	}
	return agg, true
}

func (s *Server) int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return v, true
}

func (s *Server) decodeToggle(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return false, false
	}
	if req.Checked == nil {
		s.sendError(w, http.StatusBadRequest, "checked is required")
		return false, false
	}
	return *req.Checked, true
}

func (s *Server) sendLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, results.ErrResultNotFound) {
		s.sendError(w, http.StatusNotFound, "Result not found")
		return
	}
	s.sendError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) sendCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, results.ErrCampaignNotFound):
		s.sendError(w, http.StatusNotFound, "Campaign not found")
	case errors.Is(err, results.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		s.sendError(w, http.StatusServiceUnavailable, "Workspace is not running")
	default:
		s.logger.Error("command failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Command failed")
	}
}

func fetchedAt(st *results.State) *time.Time {
	if st.FetchedAt.IsZero() {
		return nil
	}
	t := st.FetchedAt
	return &t
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
