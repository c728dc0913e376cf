// Package api exposes HTTP handlers for the routine service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/routine/internal/auth"
	"example.com/routine/internal/domain"
	"example.com/routine/internal/observability"
	"example.com/routine/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/routine", h.routine)
	mux.HandleFunc("/v1/routine/resolve", h.resolve)
	mux.HandleFunc("/v1/routine/completions", h.completions)
	mux.HandleFunc("/v1/routine/completions/all", h.completeAll)
	mux.HandleFunc("/v1/routine/activities", h.updateActivity)
	mux.HandleFunc("/v1/routine/streak", h.streak)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) routine(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.configureRoutine(w, r)
	case http.MethodGet:
		h.getRoutine(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) completions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.completeActivity(w, r)
	case http.MethodGet:
		h.history(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) configureRoutine(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeRoutinesWrite)
	if !ok {
		return
	}

	var req ConfigureRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	inputs := make([]domain.ActivityInput, 0, len(req.Activities))
	for _, activity := range req.Activities {
		inputs = append(inputs, domain.ActivityInput{
			Name:        activity.Name,
			DurationMin: activity.DurationMin,
			Icon:        activity.Icon,
			Description: activity.Description,
		})
	}

	routine, err := h.service.ConfigureRoutine(r.Context(), claims.TenantID, claims.Subject, inputs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoutineView(*routine))
}

func (h *Handler) getRoutine(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeRoutinesRead, auth.ScopeRoutinesWrite)
	if !ok {
		return
	}

	routine, err := h.service.ActiveRoutine(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoutineView(*routine))
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeRoutinesRead, auth.ScopeRoutinesWrite)
	if !ok {
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}

	result, err := h.service.ResolveActivity(r.Context(), claims.TenantID, claims.Subject, req.Query)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	observability.RecordResolution(string(result.Confidence))
	writeJSON(w, http.StatusOK, toResolveResponse(result))
}

func (h *Handler) completeActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeRoutinesWrite)
	if !ok {
		return
	}

	var req CompleteActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Identifier) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "identifier is required")
		return
	}

	result, err := h.service.CompleteActivity(r.Context(), claims.TenantID, claims.Subject, req.Identifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	observability.RecordCompletion("single")
	writeJSON(w, http.StatusOK, CompleteActivityResponse{
		ActivityName:    result.MatchedActivityName,
		CompletedToday:  result.CompletedToday,
		TotalActivities: result.TotalActivities,
		AllCompleted:    result.AllCompleted,
		AlreadyComplete: result.AlreadyComplete,
	})
}

func (h *Handler) completeAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeRoutinesWrite)
	if !ok {
		return
	}

	result, err := h.service.CompleteAll(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	observability.RecordCompletion("bulk")
	writeJSON(w, http.StatusOK, CompleteAllResponse{
		NewlyCompleted:         result.NewlyCompleted,
		TotalActivities:        result.TotalActivities,
		AllWereAlreadyComplete: result.AllWereAlreadyComplete,
		NewlyCompletedNames:    result.NewlyCompletedNames,
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeRoutinesRead, auth.ScopeRoutinesWrite)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.History(r.Context(), claims.TenantID, claims.Subject, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]DailyRecordView, 0, len(records))
	for _, record := range records {
		items = append(items, toDailyRecordView(record))
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeRoutinesWrite)
	if !ok {
		return
	}

	var req UpdateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	result, err := h.service.UpdateActivity(r.Context(), claims.TenantID, claims.Subject, req.Identifier, domain.ActivityChanges{
		Name:        req.Name,
		DurationMin: req.DurationMin,
		Icon:        req.Icon,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateActivityResponse{
		Activity:            toActivityView(result.Updated),
		MatchedOriginalName: result.MatchedOriginalName,
		Changes:             result.Changes,
	})
}

func (h *Handler) streak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeRoutinesRead, auth.ScopeRoutinesWrite)
	if !ok {
		return
	}

	windowDays := 30
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			windowDays = parsed
		}
	}

	result, err := h.service.Streak(r.Context(), claims.TenantID, claims.Subject, windowDays)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StreakResponse{
		CurrentStreak:  result.CurrentStreak,
		LongestStreak:  result.LongestStreak,
		CompletionRate: result.CompletionRate,
		WindowDays:     windowDays,
	})
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

// ConfigureRoutineRequest is the payload for PUT /v1/routine.
type ConfigureRoutineRequest struct {
	Activities []ActivityInput `json:"activities"`
}

// ActivityInput is one activity in a routine configuration.
type ActivityInput struct {
	Name        string `json:"name"`
	DurationMin int    `json:"duration_min"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

// Validate ensures request correctness.
func (r ConfigureRoutineRequest) Validate() error {
	if len(r.Activities) == 0 {
		return errors.New("activities must not be empty")
	}
	for _, activity := range r.Activities {
		if strings.TrimSpace(activity.Name) == "" {
			return errors.New("activity name is required")
		}
		if activity.DurationMin < 0 {
			return errors.New("duration_min must be >= 0")
		}
	}
	return nil
}

// ResolveRequest is the payload for POST /v1/routine/resolve.
type ResolveRequest struct {
	Query string `json:"query"`
}

// CompleteActivityRequest is the payload for POST /v1/routine/completions.
type CompleteActivityRequest struct {
	Identifier string `json:"identifier"`
}

// CompleteActivityResponse describes a single-activity completion outcome.
type CompleteActivityResponse struct {
	ActivityName    string `json:"activity_name"`
	CompletedToday  int    `json:"completed_today"`
	TotalActivities int    `json:"total_activities"`
	AllCompleted    bool   `json:"all_completed"`
	AlreadyComplete bool   `json:"already_complete"`
}

// CompleteAllResponse describes a bulk completion outcome.
type CompleteAllResponse struct {
	NewlyCompleted         int      `json:"newly_completed"`
	TotalActivities        int      `json:"total_activities"`
	AllWereAlreadyComplete bool     `json:"all_were_already_complete"`
	NewlyCompletedNames    []string `json:"newly_completed_names,omitempty"`
}

// UpdateActivityRequest is the payload for PUT /v1/routine/activities.
type UpdateActivityRequest struct {
	Identifier  string  `json:"identifier"`
	Name        *string `json:"name,omitempty"`
	DurationMin *int    `json:"duration_min,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

// Validate ensures request correctness.
func (r UpdateActivityRequest) Validate() error {
	if strings.TrimSpace(r.Identifier) == "" {
		return errors.New("identifier is required")
	}
	if r.DurationMin != nil && *r.DurationMin < 0 {
		return errors.New("duration_min must be >= 0")
	}
	return nil
}

// UpdateActivityResponse describes an edit outcome.
type UpdateActivityResponse struct {
	Activity            ActivityView `json:"activity"`
	MatchedOriginalName string       `json:"matched_original_name"`
	Changes             []string     `json:"changes"`
}

// ActivityView exposes one routine activity.
type ActivityView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration_min,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

// RoutineView exposes the active routine.
type RoutineView struct {
	Activities       []ActivityView `json:"activities"`
	TotalDurationMin int            `json:"total_duration_min"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CandidateView exposes one scored resolution candidate.
type CandidateView struct {
	Activity ActivityView `json:"activity"`
	Score    float64      `json:"score"`
	Type     string       `json:"match_type"`
}

// ResolveResponse describes a resolution outcome.
type ResolveResponse struct {
	Confidence string          `json:"confidence"`
	Best       *ActivityView   `json:"best,omitempty"`
	Candidates []CandidateView `json:"candidates,omitempty"`
}

// DailyRecordView exposes one day's completion record.
type DailyRecordView struct {
	Day            string   `json:"day"`
	CompletedIDs   []string `json:"completed_ids"`
	CompletedCount int      `json:"completed_count"`
	AllCompleted   bool     `json:"all_completed"`
}

// HistoryResponse packages history listings.
type HistoryResponse struct {
	Items      []DailyRecordView `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// StreakResponse describes streak analytics.
type StreakResponse struct {
	CurrentStreak  int     `json:"current_streak"`
	LongestStreak  int     `json:"longest_streak"`
	CompletionRate float64 `json:"completion_rate"`
	WindowDays     int     `json:"window_days"`
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ID:          activity.ID,
		Name:        activity.Name,
		DurationMin: activity.DurationMin,
		Icon:        activity.Icon,
		Description: activity.Description,
	}
}

func toRoutineView(routine domain.Routine) RoutineView {
	views := make([]ActivityView, 0, len(routine.Activities))
	for _, activity := range routine.Activities {
		views = append(views, toActivityView(activity))
	}
	return RoutineView{
		Activities:       views,
		TotalDurationMin: routine.TotalDurationMin,
		CreatedAt:        routine.CreatedAt,
		UpdatedAt:        routine.UpdatedAt,
	}
}

func toResolveResponse(result domain.MatchResult) ResolveResponse {
	resp := ResolveResponse{Confidence: string(result.Confidence)}
	if result.Best != nil {
		view := toActivityView(*result.Best)
		resp.Best = &view
	}
	for _, candidate := range result.Candidates {
		resp.Candidates = append(resp.Candidates, CandidateView{
			Activity: toActivityView(candidate.Activity),
			Score:    candidate.Score,
			Type:     string(candidate.Type),
		})
	}
	return resp
}

func toDailyRecordView(record domain.DailyRecord) DailyRecordView {
	return DailyRecordView{
		Day:            record.Day.Format(time.DateOnly),
		CompletedIDs:   record.CompletedIDs,
		CompletedCount: len(record.CompletedIDs),
		AllCompleted:   record.AllCompleted,
	}
}

// writeDomainError maps domain failures to HTTP statuses. Ambiguity and the
// missing/empty routine states are caller-resolvable, so they come back as
// conflicts rather than server errors.
func writeDomainError(w http.ResponseWriter, err error) {
	var ambiguous *domain.AmbiguousMatchError
	switch {
	case errors.As(err, &ambiguous):
		candidates := make([]CandidateView, 0, len(ambiguous.Candidates))
		for _, candidate := range ambiguous.Candidates {
			candidates = append(candidates, CandidateView{
				Activity: toActivityView(candidate.Activity),
				Score:    candidate.Score,
				Type:     string(candidate.Type),
			})
		}
		writeJSON(w, http.StatusConflict, AmbiguousMatchResponse{
			Type:       "ambiguous_match",
			Detail:     ambiguous.Error(),
			Candidates: candidates,
		})
	case errors.Is(err, domain.ErrNoActiveRoutine):
		writeError(w, http.StatusConflict, "no_active_routine", "configure a routine first")
	case errors.Is(err, domain.ErrEmptyRoutine):
		writeError(w, http.StatusConflict, "empty_routine", "the active routine has no activities")
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no activity matched the identifier")
	case errors.Is(err, domain.ErrUpdateConflict):
		writeError(w, http.StatusServiceUnavailable, "update_conflict", "please retry the completion")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// AmbiguousMatchResponse carries the tied candidate set for disambiguation.
type AmbiguousMatchResponse struct {
	Type       string          `json:"type"`
	Detail     string          `json:"detail"`
	Candidates []CandidateView `json:"candidates"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
