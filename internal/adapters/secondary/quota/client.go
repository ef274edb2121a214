package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"training-pipeline-service/internal/config"
	ports "training-pipeline-service/internal/core/ports/output"
)

type client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a quota client against the entitlements service.
func NewClient(cfg *config.QuotaConfig) ports.QuotaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
	}
}

type reserveRequest struct {
	TenantID string `json:"tenant_id"`
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
}

type reserveResponse struct {
	Allowed bool `json:"allowed"`
}

func (c *client) CheckAndReserve(ctx context.Context, tenantID uuid.UUID, resource string, amount int) (bool, error) {
	body, err := json.Marshal(reserveRequest{
		TenantID: tenantID.String(),
		Resource: resource,
		Amount:   amount,
	})
	if err != nil {
		return false, fmt.Errorf("marshal reserve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/quota/reserve", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create reserve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("quota request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("quota service returned status %d", resp.StatusCode)
	}

	var parsed reserveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("decode quota response: %w", err)
	}
	return parsed.Allowed, nil
}
