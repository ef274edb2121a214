package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListAuditEvents(t *testing.T) {
	f := setupRouter(t)

	w := f.do("POST", "/api/v1/training-pipeline/runs", submitBody(f), "owner")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do("GET", "/api/v1/training-pipeline/audit", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, float64(1), resp["total"])

	items := resp["items"].([]interface{})
	first := items[0].(map[string]interface{})
	assert.Equal(t, "training_run_created", first["action"])
}

func TestListAuditEvents_EmptyForNewTenant(t *testing.T) {
	f := setupRouter(t)

	w := f.do("GET", "/api/v1/training-pipeline/audit", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, float64(0), resp["total"])
}
