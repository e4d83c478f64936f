package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/paramads/adops-engine/internal/pkg/httpretry"
)

// GoogleClient talks to the Google Ads API. Writes go through the campaign
// mutate endpoint as JSON with an update mask.
type GoogleClient struct {
	baseURL        string
	developerToken string
	http           httpretry.Doer
}

// NewGoogleClient creates a Google Ads client. baseURL includes the API
// version, e.g. "https://googleads.googleapis.com/v16".
func NewGoogleClient(baseURL, developerToken string, doer httpretry.Doer) *GoogleClient {
	if doer == nil {
		doer = httpretry.New(nil, 3)
	}
	return &GoogleClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		developerToken: developerToken,
		http:           doer,
	}
}

// UpdateStatus sets the campaign's status. Google expects ENABLED or PAUSED.
func (c *GoogleClient) UpdateStatus(ctx context.Context, account AdAccount, platformEntityID, status string) error {
	remote := "PAUSED"
	if strings.EqualFold(status, "active") {
		remote = "ENABLED"
	}
	return c.mutate(ctx, "update status", account, platformEntityID, map[string]interface{}{
		"status": remote,
	}, "status")
}

// UpdateBudget sets the campaign's daily budget. Google expects micros.
func (c *GoogleClient) UpdateBudget(ctx context.Context, account AdAccount, platformEntityID string, dailyBudget float64) error {
	micros := int64(dailyBudget * 1_000_000)
	return c.mutate(ctx, "update budget", account, platformEntityID, map[string]interface{}{
		"campaignBudget": map[string]interface{}{"amountMicros": micros},
	}, "campaign_budget")
}

func (c *GoogleClient) mutate(ctx context.Context, op string, account AdAccount, entityID string, update map[string]interface{}, mask string) error {
	update["resourceName"] = fmt.Sprintf("customers/%s/campaigns/%s", account.PlatformAccountID, entityID)

	payload, err := json.Marshal(map[string]interface{}{
		"operations": []map[string]interface{}{
			{"update": update, "updateMask": mask},
		},
	})
	if err != nil {
		return fmt.Errorf("google: encode mutate: %w", err)
	}

	endpoint := fmt.Sprintf("%s/customers/%s/campaigns:mutate", c.baseURL, account.PlatformAccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("google: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)
	req.Header.Set("developer-token", c.developerToken)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("google: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Platform:   "google",
			Operation:  op,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
