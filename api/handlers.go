/*
handlers.go - HTTP API handlers for the allocation engine

PURPOSE:
  Exposes the planning service via REST. Handles HTTP request/response,
  JSON serialization, and delegates every edit to planning.Service, which
  runs it in one repository transaction.

ENDPOINTS:
  Catalog:
    GET    /api/calendars                       List calendars
    POST   /api/calendars                       Create or replace a calendar
    GET    /api/resources                       List resources
    POST   /api/resources                       Create or replace a resource
    GET    /api/resources/load                  Load per resource or criterion

  Tasks:
    GET    /api/tasks                           List tasks (?removed=true)
    POST   /api/tasks                           Create task
    GET    /api/tasks/{id}                      Task document
    DELETE /api/tasks/{id}                      Remove task
    GET    /api/tasks/{id}/view                 Aggregate with detail items (?zoom=week)
    POST   /api/tasks/{id}/resize               New end
    POST   /api/tasks/{id}/move                 New start
    POST   /api/tasks/{id}/consolidate          Lock days up to a date

  Allocations:
    POST   /api/tasks/{id}/allocations                    Add allocation
    DELETE /api/tasks/{id}/allocations/{alloc}            Remove allocation
    POST   /api/tasks/{id}/allocations/{alloc}/allocate   Allocate effort (optionally scoped)
    PUT    /api/tasks/{id}/allocations/{alloc}/function   Set assignment function
    PUT    /api/tasks/{id}/allocations/{alloc}/items      Edit one detail item
    POST   /api/tasks/{id}/allocations/{alloc}/enqueue    Queue a limiting allocation
    POST   /api/tasks/{id}/allocations/{alloc}/requeue    Move it on its queue

  Queues, runs, scenarios:
    GET    /api/queues
    GET    /api/consolidation/runs              (?status=failed)
    POST   /api/consolidation/process           Run the consolidation job now
    GET    /api/scenarios, GET /api/scenarios/current
    POST   /api/scenarios/load, POST /api/scenarios/reset
    POST   /api/plans                           Apply a plan document (?reset=true)

ERROR HANDLING:
  Errors are returned as {error, details, code} with:
  - 400: Invalid argument
  - 404: Task, allocation, resource, calendar or queue element not found
  - 409: Policy violation, queue overlap, concurrent modification
  - 422: No capacity left within the search horizon
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/planning"
	"github.com/warp/allocation-engine/store"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *planning.Service
	// Scheduler backs POST /api/consolidation/process. Optional.
	Scheduler *ConsolidationScheduler

	logger *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

func NewHandler(svc *planning.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: svc, logger: logger.With("component", "api")}
}

// =============================================================================
// CATALOG
// =============================================================================

func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Service.ListCalendars(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(docs))
}

func (h *Handler) SaveCalendar(w http.ResponseWriter, r *http.Request) {
	var doc factory.CalendarDoc
	if !decode(w, r, &doc) {
		return
	}
	if err := h.Service.SaveCalendar(r.Context(), doc); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Service.ListResources(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(docs))
}

func (h *Handler) SaveResource(w http.ResponseWriter, r *http.Request) {
	var doc factory.ResourceDoc
	if !decode(w, r, &doc) {
		return
	}
	if err := h.Service.SaveResource(r.Context(), doc); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// GetResourceLoad returns a page of load timelines.
// GET /api/resources/load?from=2024-01-01&to=2024-01-31&group_by=criterion&offset=0&limit=20
func (h *Handler) GetResourceLoad(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := planner.ParseDay(q.Get("from"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	to, err := planner.ParseDay(q.Get("to"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rng, err := planner.NewDateRange(from, to)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	offset, limit, err := pagination(q.Get("offset"), q.Get("limit"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	groupBy := planning.LoadGrouping(q.Get("group_by"))
	if groupBy == "" {
		groupBy = planning.ByResource
	}

	timelines, err := h.Service.ResourceLoad(r.Context(), rng, groupBy)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	page := LoadPageDTO{
		GroupBy: string(groupBy),
		From:    from.String(),
		To:      to.String(),
		Total:   len(timelines),
		Offset:  offset,
		Limit:   limit,
		Groups:  []LoadTimelineDTO{},
	}
	end := offset + limit
	if end > len(timelines) {
		end = len(timelines)
	}
	for i := offset; i < end; i++ {
		page.Groups = append(page.Groups, toLoadTimelineDTO(timelines[i]))
	}
	writeJSON(w, http.StatusOK, page)
}

// =============================================================================
// TASKS
// =============================================================================

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	includeRemoved := r.URL.Query().Get("removed") == "true"
	docs, err := h.Service.ListTasks(r.Context(), includeRemoved)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(docs))
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var doc factory.TaskDoc
	if !decode(w, r, &doc) {
		return
	}
	created, err := h.Service.CreateTask(r.Context(), doc)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) RemoveTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.RemoveTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTaskView returns the aggregate and the allocation grid.
// GET /api/tasks/{id}/view?zoom=week
func (h *Handler) GetTaskView(w http.ResponseWriter, r *http.Request) {
	zoom, err := planner.ParseZoomLevel(r.URL.Query().Get("zoom"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	view, err := h.Service.TaskView(r.Context(), chi.URLParam(r, "id"), zoom)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskViewDTO(view))
}

func (h *Handler) ResizeTask(w http.ResponseWriter, r *http.Request) {
	var req ResizeRequest
	if !decode(w, r, &req) {
		return
	}
	end, err := planner.ParseIntraDayDate(req.End)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeTask(w)(h.Service.Resize(r.Context(), chi.URLParam(r, "id"), end))
}

func (h *Handler) MoveTask(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	start, err := planner.ParseIntraDayDate(req.Start)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeTask(w)(h.Service.Move(r.Context(), chi.URLParam(r, "id"), start))
}

func (h *Handler) ConsolidateTask(w http.ResponseWriter, r *http.Request) {
	var req ConsolidateRequest
	if !decode(w, r, &req) {
		return
	}
	until, err := planner.ParseDay(req.Until)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeTask(w)(h.Service.Consolidate(r.Context(), chi.URLParam(r, "id"), until))
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func (h *Handler) AddAllocation(w http.ResponseWriter, r *http.Request) {
	var doc factory.AllocationDoc
	if !decode(w, r, &doc) {
		return
	}
	task, err := h.Service.AddAllocation(r.Context(), chi.URLParam(r, "id"), doc)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) RemoveAllocation(w http.ResponseWriter, r *http.Request) {
	h.writeTask(w)(h.Service.RemoveAllocation(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "alloc")))
}

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if !decode(w, r, &req) {
		return
	}
	effort, err := planner.ParseEffort(req.Effort)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	taskID, allocID := chi.URLParam(r, "id"), chi.URLParam(r, "alloc")
	if req.Start == "" && req.End == "" {
		h.writeTask(w)(h.Service.Allocate(r.Context(), taskID, allocID, effort))
		return
	}

	start, err := planner.ParseIntraDayDate(req.Start)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	end, err := planner.ParseIntraDayDate(req.End)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeTask(w)(h.Service.AllocateOn(r.Context(), taskID, allocID, start, end, effort))
}

func (h *Handler) SetFunction(w http.ResponseWriter, r *http.Request) {
	var doc factory.FunctionDoc
	if !decode(w, r, &doc) {
		return
	}
	fn, err := factory.BuildFunction(doc)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeTask(w)(h.Service.SetFunction(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "alloc"), fn))
}

func (h *Handler) EditItem(w http.ResponseWriter, r *http.Request) {
	var req EditItemRequest
	if !decode(w, r, &req) {
		return
	}
	zoom, err := planner.ParseZoomLevel(req.Zoom)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	day, err := planner.ParseDay(req.Date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	effort, err := planner.ParseEffort(req.Effort)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeTask(w)(h.Service.EditDetailItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "alloc"), zoom, day, effort))
}

// =============================================================================
// QUEUES
// =============================================================================

func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.Service.Queues(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	dtos := make([]QueueDTO, 0, len(queues))
	for _, q := range queues {
		dtos = append(dtos, toQueueDTO(q))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if !decode(w, r, &req) {
		return
	}
	start, err := planner.ParseIntraDayDate(req.Start)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	placed, err := h.Service.Enqueue(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "alloc"), start, req.Priority)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.QueueElementToDoc(placed))
}

func (h *Handler) Requeue(w http.ResponseWriter, r *http.Request) {
	var req MoveQueuedRequest
	if !decode(w, r, &req) {
		return
	}
	start, err := planner.ParseIntraDayDate(req.Start)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	placed, err := h.Service.MoveQueued(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "alloc"), start, req.Fixed)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.QueueElementToDoc(placed))
}

// =============================================================================
// CONSOLIDATION RUNS AND PLANS
// =============================================================================

func (h *Handler) ListConsolidationRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Service.ConsolidationRuns(r.Context(), store.RunStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ProcessConsolidation(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Consolidation job is not configured", nil)
		return
	}
	summary, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ApplyPlan applies a JSON plan document.
// POST /api/plans?reset=true
func (h *Handler) ApplyPlan(w http.ResponseWriter, r *http.Request) {
	var plan factory.PlanDoc
	if !decode(w, r, &plan) {
		return
	}
	result, err := h.Service.ApplyPlan(r.Context(), &plan, r.URL.Query().Get("reset") == "true")
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanResultDTO(result))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps the planner error taxonomy to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		overlap *planner.QueueOverlapError
		policy  *planner.PolicyViolationError
	)
	resp := ErrorResponse{Error: planner.UserMessage(err), Details: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &overlap):
		status, resp.Code = http.StatusConflict, "queue_overlap"
	case errors.As(err, &policy):
		status, resp.Code = http.StatusConflict, policy.Code
	case planner.IsPolicyViolation(err):
		status, resp.Code = http.StatusConflict, "policy_violation"
	case planner.IsRetryable(err):
		status, resp.Code = http.StatusConflict, "concurrent_modification"
	case planner.IsNotFound(err):
		status, resp.Code = http.StatusNotFound, "not_found"
	case planner.IsInvalidArgument(err):
		status, resp.Code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, planner.ErrCapacityExhausted):
		status, resp.Code = http.StatusUnprocessableEntity, "capacity_exhausted"
	default:
		resp.Error = "Internal error"
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, resp)
}

// writeTask returns a writer for the (task, error) pair of a task edit.
func (h *Handler) writeTask(w http.ResponseWriter) func(factory.TaskDoc, error) {
	return func(doc factory.TaskDoc, err error) {
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

const defaultPageSize = 50

func pagination(offsetParam, limitParam string) (offset, limit int, err error) {
	limit = defaultPageSize
	if offsetParam != "" {
		if offset, err = strconv.Atoi(offsetParam); err != nil || offset < 0 {
			return 0, 0, &planner.InvalidArgumentError{Field: "offset", Reason: "must be a non-negative integer"}
		}
	}
	if limitParam != "" {
		if limit, err = strconv.Atoi(limitParam); err != nil || limit <= 0 {
			return 0, 0, &planner.InvalidArgumentError{Field: "limit", Reason: "must be a positive integer"}
		}
	}
	return offset, limit, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
