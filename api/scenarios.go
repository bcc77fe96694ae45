/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built plans that populate the repository with realistic
	data for demos and UI work. Each scenario is a YAML plan file embedded
	in the binary: calendars, resources, tasks and the edits to replay.

AVAILABLE SCENARIOS:

	design-sprint:  Shaped and generic allocations, consolidated days, overload
	machine-shop:   Generic limiting allocations queued on two presses
	late-delivery:  As-late-as-possible task with a restriction and manual edits

HOW SCENARIOS WORK:
 1. Reset the repository
 2. Save calendars and resources
 3. Create tasks
 4. Replay the steps through the planning service

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "machine-shop"}

ADDING NEW SCENARIOS:

	Drop a plan file in api/scenarios/. Its name field is the scenario id.

NOTE:

	Loading a scenario resets the repository. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: Other endpoints
  - factory/plan.go: Plan document format
*/
package api

import (
	"embed"
	"fmt"
	"net/http"
	"path"
	"sort"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
)

//go:embed scenarios/*.yaml
var scenarioFiles embed.FS

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// Scenarios parses every embedded plan, sorted by id.
func Scenarios() (map[string]*factory.PlanDoc, []ScenarioDTO, error) {
	entries, err := scenarioFiles.ReadDir("scenarios")
	if err != nil {
		return nil, nil, err
	}
	plans := make(map[string]*factory.PlanDoc)
	var list []ScenarioDTO
	for _, e := range entries {
		data, err := scenarioFiles.ReadFile(path.Join("scenarios", e.Name()))
		if err != nil {
			return nil, nil, err
		}
		plan, err := factory.ParsePlanYAML(data)
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %s: %w", e.Name(), err)
		}
		plans[plan.Name] = plan
		list = append(list, ScenarioDTO{
			ID:          plan.Name,
			Name:        plan.Name,
			Description: plan.Description,
			Tasks:       len(plan.Tasks),
			Steps:       len(plan.Steps),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return plans, list, nil
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	_, list, err := Scenarios()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read scenarios", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	_, list, err := Scenarios()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read scenarios", err)
		return
	}
	for _, s := range list {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the repository and applies a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	plans, _, err := Scenarios()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read scenarios", err)
		return
	}
	plan, ok := plans[req.ScenarioID]
	if !ok {
		h.writeServiceError(w, &planner.InvalidArgumentError{Field: "scenario_id", Reason: "unknown scenario " + req.ScenarioID})
		return
	}

	result, err := h.Service.ApplyPlan(r.Context(), plan, true)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = plan.Name
	h.mu.Unlock()
	h.logger.Info("scenario loaded", "scenario", plan.Name, "tasks", len(result.Tasks))
	writeJSON(w, http.StatusOK, toPlanResultDTO(result))
}

// ResetDatabase empties the repository.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Repository().Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
