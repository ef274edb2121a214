package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"training-pipeline-service/internal/core/domain"
)

func (f *routerFixture) seedActiveDeployment(t *testing.T) *domain.Deployment {
	t.Helper()
	deployment := &domain.Deployment{
		ID:            uuid.New(),
		TenantID:      f.tenantID,
		ProjectID:     f.projectID,
		TrainingRunID: uuid.New(),
		Version:       "v1",
		Status:        domain.DeploymentStatusActive,
		PackagePath:   "/artifacts/pkg.zip",
		CreatedAt:     time.Now(),
	}
	assert.NoError(t, f.deployments.ActivateExclusive(context.Background(), deployment))
	return deployment
}

func TestActivateDeployment(t *testing.T) {
	f := setupRouter(t)
	run := f.seedRun(domain.RunStateReady)
	run.PackagePath = "/artifacts/pkg.zip"
	_ = f.runs.Update(context.Background(), run)

	body := map[string]any{
		"project_id":      f.projectID,
		"training_run_id": run.ID,
		"version":         "v1",
	}
	w := f.do("POST", "/api/v1/training-pipeline/deployments", body, "owner")
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "ACTIVE", resp["status"])
	assert.Equal(t, "v1", resp["version"])
}

func TestActivateDeployment_RunNotReady(t *testing.T) {
	f := setupRouter(t)
	run := f.seedRun(domain.RunStateTraining)

	body := map[string]any{
		"project_id":      f.projectID,
		"training_run_id": run.ID,
		"version":         "v1",
	}
	w := f.do("POST", "/api/v1/training-pipeline/deployments", body, "owner")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestActivateDeployment_ViewerForbidden(t *testing.T) {
	f := setupRouter(t)

	body := map[string]any{
		"project_id":      f.projectID,
		"training_run_id": uuid.New(),
		"version":         "v1",
	}
	w := f.do("POST", "/api/v1/training-pipeline/deployments", body, "viewer")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestActivateDeployment_MissingVersion(t *testing.T) {
	f := setupRouter(t)

	body := map[string]any{
		"project_id":      f.projectID,
		"training_run_id": uuid.New(),
	}
	w := f.do("POST", "/api/v1/training-pipeline/deployments", body, "owner")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDeployments(t *testing.T) {
	f := setupRouter(t)
	f.seedActiveDeployment(t)

	w := f.do("GET", "/api/v1/training-pipeline/deployments?project_id="+f.projectID.String(), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, float64(1), resp["total"])
}

func TestListDeployments_InvalidProjectID(t *testing.T) {
	f := setupRouter(t)

	w := f.do("GET", "/api/v1/training-pipeline/deployments?project_id=not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetActiveDeployment(t *testing.T) {
	f := setupRouter(t)
	deployment := f.seedActiveDeployment(t)

	w := f.do("GET", "/api/v1/training-pipeline/deployments/active?project_id="+f.projectID.String(), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, deployment.ID.String(), resp["id"])
}

func TestGetActiveDeployment_NoneActive(t *testing.T) {
	f := setupRouter(t)

	w := f.do("GET", "/api/v1/training-pipeline/deployments/active?project_id="+f.projectID.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat(t *testing.T) {
	f := setupRouter(t)
	f.seedActiveDeployment(t)

	body := map[string]any{
		"project_id": f.projectID,
		"question":   "what is the refund window",
		"context_docs": []map[string]string{
			{"id": "doc-1", "text": "Refunds are accepted within 30 days of purchase with a receipt."},
		},
	}
	w := f.do("POST", "/api/v1/training-pipeline/chat", body, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, false, resp["refused"])
	citations := resp["citations"].([]interface{})
	assert.Len(t, citations, 1)
}

func TestChat_RefusesWithoutGrounding(t *testing.T) {
	f := setupRouter(t)
	f.seedActiveDeployment(t)

	body := map[string]any{
		"project_id": f.projectID,
		"question":   "what is the refund window",
	}
	w := f.do("POST", "/api/v1/training-pipeline/chat", body, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, true, resp["refused"])
}

func TestChat_NoActiveDeployment(t *testing.T) {
	f := setupRouter(t)

	body := map[string]any{
		"project_id": f.projectID,
		"question":   "hello",
	}
	w := f.do("POST", "/api/v1/training-pipeline/chat", body, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat_MissingQuestion(t *testing.T) {
	f := setupRouter(t)

	body := map[string]any{"project_id": f.projectID}
	w := f.do("POST", "/api/v1/training-pipeline/chat", body, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
