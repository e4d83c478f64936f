package httpretry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type scriptedDoer struct {
	responses []int
	errs      []error
	calls     int
}

func (s *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	code := http.StatusOK
	if i < len(s.responses) {
		code = s.responses[i]
	}
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func fastClient(inner Doer, retries int) *Client {
	c := New(inner, retries)
	c.baseDelay = time.Millisecond
	c.maxDelay = 2 * time.Millisecond
	return c
}

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://api.test/v1/thing", strings.NewReader("a=1"))
	if err != nil {
		t.Fatal(err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("a=1")), nil
	}
	return req
}

func TestDo_RetriesTransientStatusThenSucceeds(t *testing.T) {
	inner := &scriptedDoer{responses: []int{503, 429, 200}}
	c := fastClient(inner, 3)

	resp, err := c.Do(newRequest(t))
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	inner := &scriptedDoer{responses: []int{403}}
	c := fastClient(inner, 3)

	resp, err := c.Do(newRequest(t))
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	defer resp.Body.Close()

	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 (4xx is not retryable)", inner.calls)
	}
}

func TestDo_ExhaustedRetriesReturnsLastResponse(t *testing.T) {
	inner := &scriptedDoer{responses: []int{500, 500, 500}}
	c := fastClient(inner, 2)

	resp, err := c.Do(newRequest(t))
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want the final 500", resp.StatusCode)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want initial + 2 retries", inner.calls)
	}
}

func TestDo_RetriesTransportErrors(t *testing.T) {
	inner := &scriptedDoer{errs: []error{errors.New("connection reset"), nil}}
	c := fastClient(inner, 3)

	resp, err := c.Do(newRequest(t))
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	resp.Body.Close()

	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &scriptedDoer{responses: []int{503, 503, 503}}
	c := fastClient(inner, 3)

	req := newRequest(t).WithContext(ctx)
	if _, err := c.Do(req); err == nil {
		t.Fatal("expected error with cancelled context")
	}
	if inner.calls > 1 {
		t.Errorf("calls = %d, should stop immediately", inner.calls)
	}
}
