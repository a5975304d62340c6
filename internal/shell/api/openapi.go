package api

import (
	"net/http"

	"github.com/artpar/waveplan/internal/shell/api/openapi"
)

// endpoints describes the /api/v1 routes for the OpenAPI document.
func endpoints() []openapi.Endpoint {
	const base = "/api/v1"
	return []openapi.Endpoint{
		{Method: http.MethodGet, Path: base + "/services", OperationID: "listServices",
			Summary: "List catalog services", Tag: "Catalog", Response: ListServicesResponse{}},
		{Method: http.MethodGet, Path: base + "/strategies", OperationID: "listStrategies",
			Summary: "List deployment strategies", Tag: "Catalog", Response: ListStrategiesResponse{}},
		{Method: http.MethodPost, Path: base + "/validate", OperationID: "validateGraph",
			Summary: "Validate a dependency graph", Tag: "Planning", Request: ValidateRequest{}, Response: ValidationResponse{}},
		{Method: http.MethodPost, Path: base + "/plans", OperationID: "createPlan",
			Summary: "Create a deployment plan", Tag: "Planning", Request: CreatePlanRequest{}, Response: PlanResponse{},
			Status: http.StatusCreated},
		{Method: http.MethodGet, Path: base + "/plans", OperationID: "listPlans",
			Summary: "List stored plans", Tag: "Planning", Response: ListPlansResponse{}, Query: []string{"limit", "offset"}},
		{Method: http.MethodGet, Path: base + "/plans/{id}", OperationID: "getPlan",
			Summary: "Get a plan", Tag: "Planning", Response: PlanResponse{}},
		{Method: http.MethodDelete, Path: base + "/plans/{id}", OperationID: "deletePlan",
			Summary: "Delete a plan and its finished runs", Tag: "Planning", Status: http.StatusNoContent},
		{Method: http.MethodPost, Path: base + "/rollback-order", OperationID: "resolveRollbackOrder",
			Summary: "Resolve the teardown order for deployed services", Tag: "Planning",
			Request: RollbackOrderRequest{}, Response: RollbackOrderResponse{}},
		{Method: http.MethodPost, Path: base + "/plans/{id}/runs", OperationID: "createRun",
			Summary: "Execute a plan", Tag: "Runs", Response: RunResponse{}, Status: http.StatusAccepted},
		{Method: http.MethodGet, Path: base + "/plans/{id}/runs", OperationID: "listPlanRuns",
			Summary: "List executions of a plan", Tag: "Runs", Response: ListRunsResponse{}, Query: []string{"limit", "offset"}},
		{Method: http.MethodGet, Path: base + "/runs", OperationID: "listActiveRuns",
			Summary: "List unfinished executions", Tag: "Runs", Response: ListRunsResponse{}},
		{Method: http.MethodGet, Path: base + "/runs/{id}", OperationID: "getRun",
			Summary: "Get an execution", Tag: "Runs", Response: RunResponse{}},
	}
}
