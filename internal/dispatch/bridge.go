// Package dispatch bridges a queue of command requests to an HTTP command
// executor, reporting success or failure per item so the queue can redeliver
// only the failed subset.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medvoice/farah/internal/observability"
	"github.com/medvoice/farah/internal/reliability"
)

// Per-item failure causes, distinguishable via errors.Is on the wrapped
// detail.
var (
	ErrNetwork  = errors.New("dispatch network error")
	ErrProtocol = errors.New("dispatch protocol error")
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// CommandRequest is one queued command, identified by the queue's message id.
type CommandRequest struct {
	ID      string         `json:"id"`
	UserID  string         `json:"user_id"`
	Command string         `json:"command"`
	Args    map[string]any `json:"args"`
}

// CommandResult pairs with exactly one CommandRequest by ID: success or
// error, never both, never neither.
type CommandResult struct {
	ID          string          `json:"id"`
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	// Retryable marks failures worth another delivery attempt. Malformed
	// items and executor rejections stay false so poison messages are not
	// redelivered forever.
	Retryable bool `json:"retryable,omitempty"`
}

// executorRequest is the wire body sent to the command execution endpoint.
type executorRequest struct {
	RequestID string         `json:"requestId"`
	UserID    string         `json:"userId"`
	Command   string         `json:"command"`
	Args      map[string]any `json:"args"`
}

// Bridge forwards command requests to the executor endpoint. It applies no
// retry policy; the caller redelivers failed items.
type Bridge struct {
	url         string
	client      *http.Client
	maxInFlight int
	metrics     *observability.Metrics
}

func NewBridge(url string, timeout time.Duration, maxInFlight int, metrics *observability.Metrics) *Bridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &Bridge{
		url:         strings.TrimSpace(url),
		client:      &http.Client{Timeout: timeout},
		maxInFlight: maxInFlight,
		metrics:     metrics,
	}
}

// Dispatch executes the batch, one network call per request, at most
// maxInFlight concurrently. Results come back in input order, one per
// request; a failed item never aborts the rest of the batch.
func (b *Bridge) Dispatch(ctx context.Context, batch []CommandRequest) []CommandResult {
	results := make([]CommandResult, len(batch))

	g := &errgroup.Group{}
	g.SetLimit(b.maxInFlight)
	for i, req := range batch {
		g.Go(func() error {
			results[i] = b.execute(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	if b.metrics != nil {
		for _, res := range results {
			b.metrics.DispatchResults.WithLabelValues(string(res.Status)).Inc()
		}
	}
	return results
}

func (b *Bridge) execute(ctx context.Context, req CommandRequest) CommandResult {
	body, err := json.Marshal(executorRequest{
		RequestID: req.ID,
		UserID:    req.UserID,
		Command:   req.Command,
		Args:      req.Args,
	})
	if err != nil {
		return errorResult(req.ID, fmt.Errorf("%w: marshal request: %v", ErrProtocol, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return errorResult(req.ID, fmt.Errorf("%w: create request: %v", ErrNetwork, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := b.client.Do(httpReq)
	if err != nil {
		return errorResult(req.ID, fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		cause := ErrProtocol
		if reliability.RetryableStatus(res.StatusCode) {
			cause = ErrNetwork
		}
		return errorResult(req.ID, fmt.Errorf("%w: executor status %d: %s", cause, res.StatusCode, string(detail)))
	}

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return errorResult(req.ID, fmt.Errorf("%w: read response: %v", ErrNetwork, err))
	}

	var parsed json.RawMessage
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return errorResult(req.ID, fmt.Errorf("%w: parse response body: %v", ErrProtocol, err))
	}

	return CommandResult{ID: req.ID, Status: StatusSuccess, Payload: parsed}
}

func errorResult(id string, err error) CommandResult {
	return CommandResult{
		ID:          id,
		Status:      StatusError,
		ErrorDetail: err.Error(),
		Retryable:   errors.Is(err, ErrNetwork),
	}
}

// FailedIDs extracts the identifiers of every failed item.
func FailedIDs(results []CommandResult) []string {
	var failed []string
	for _, r := range results {
		if r.Status == StatusError {
			failed = append(failed, r.ID)
		}
	}
	return failed
}

// RetryableIDs extracts the failed identifiers worth redelivering.
func RetryableIDs(results []CommandResult) []string {
	var ids []string
	for _, r := range results {
		if r.Status == StatusError && r.Retryable {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
