package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/paramads/adops-engine/internal/pkg/httpretry"
)

// MetaClient talks to the Meta (Facebook) Graph Marketing API. Status and
// budget writes are plain form POSTs against the entity node.
type MetaClient struct {
	baseURL string
	http    httpretry.Doer
}

// NewMetaClient creates a Meta client. baseURL includes the API version,
// e.g. "https://graph.facebook.com/v18.0". A nil doer gets a retrying
// client with default settings.
func NewMetaClient(baseURL string, doer httpretry.Doer) *MetaClient {
	if doer == nil {
		doer = httpretry.New(nil, 3)
	}
	return &MetaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    doer,
	}
}

// UpdateStatus sets the entity's status. Meta expects ACTIVE or PAUSED.
func (c *MetaClient) UpdateStatus(ctx context.Context, account AdAccount, platformEntityID, status string) error {
	form := url.Values{
		"access_token": {account.AccessToken},
		"status":       {strings.ToUpper(status)},
	}
	return c.post(ctx, "update status", platformEntityID, form)
}

// UpdateBudget sets the campaign's daily budget. Meta expects cents.
func (c *MetaClient) UpdateBudget(ctx context.Context, account AdAccount, platformEntityID string, dailyBudget float64) error {
	budgetInCents := int(dailyBudget * 100)
	form := url.Values{
		"access_token": {account.AccessToken},
		"daily_budget": {fmt.Sprintf("%d", budgetInCents)},
	}
	return c.post(ctx, "update budget", platformEntityID, form)
}

func (c *MetaClient) post(ctx context.Context, op, entityID string, form url.Values) error {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, entityID)
	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("meta: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("meta: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Platform:   "meta",
			Operation:  op,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
