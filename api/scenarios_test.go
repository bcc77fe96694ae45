/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:

	Loads every embedded scenario through the API and checks the state it
	leaves behind, so scenarios double as integration tests.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/factory"
)

func TestScenarios_AllLoad(t *testing.T) {
	_, list, err := Scenarios()
	require.NoError(t, err)
	require.Len(t, list, 3)

	for _, s := range list {
		t.Run(s.ID, func(t *testing.T) {
			// GIVEN: A repository with unrelated data
			router, _ := setupTestRouter(t)
			createDesignTask(t, router)

			// WHEN: Loading the scenario
			rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.ID})

			// THEN: Only its tasks remain and it is the current scenario
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			result := decodeBody[PlanResultDTO](t, rec)
			assert.Len(t, result.Tasks, s.Tasks)
			assert.Len(t, result.Steps, s.Steps)

			rec = do(t, router, http.MethodGet, "/api/tasks", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, decodeBody[[]factory.TaskDoc](t, rec), s.Tasks)

			rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, s.ID, decodeBody[ScenarioDTO](t, rec).ID)
		})
	}
}

func TestScenario_MachineShopQueues(t *testing.T) {
	// GIVEN: The machine shop scenario
	router, _ := setupTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "machine-shop"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: Listing the queues
	rec = do(t, router, http.MethodGet, "/api/queues", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queues := decodeBody[[]QueueDTO](t, rec)

	// THEN: Three jobs spread over the presses, job-1 consolidated
	total := 0
	for _, q := range queues {
		total += len(q.Elements)
		for _, e := range q.Elements {
			if e.Task == "job-1" {
				assert.True(t, e.Consolidated)
			}
		}
	}
	assert.Equal(t, 3, total)
}

func TestScenario_DesignSprintOverload(t *testing.T) {
	router, _ := setupTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "design-sprint"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/tasks/backend/view?zoom=week", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeBody[TaskViewDTO](t, rec)

	assert.Equal(t, "80:00", view.Total)
	assert.Equal(t, "stretches", view.Allocations[0].Function)
	assert.Equal(t, "2024-01-10", view.Task.FirstDayNotConsolidated)
}

func TestScenarios_Reset(t *testing.T) {
	router, _ := setupTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "late-delivery"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/tasks", nil)
	assert.Empty(t, decodeBody[[]factory.TaskDoc](t, rec))
	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}
