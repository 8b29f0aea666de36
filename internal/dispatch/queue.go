package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// QueueItem is one message pulled from the ingress queue. The body is the
// queue's JSON payload: {"command": string, "args": mapping}.
type QueueItem struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Body      []byte `json:"body"`
}

type queueBody struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args"`
}

// QueueAdapter wraps queue items into command requests and reports the failed
// subset back for selective redelivery.
type QueueAdapter struct {
	bridge *Bridge
}

func NewQueueAdapter(bridge *Bridge) *QueueAdapter {
	return &QueueAdapter{bridge: bridge}
}

// Process handles one received batch. Items with unparseable bodies fail
// without a network call; an identifier is never reported successful unless
// its command was actually executed.
func (a *QueueAdapter) Process(ctx context.Context, items []QueueItem) []CommandResult {
	results := make([]CommandResult, len(items))

	// Pre-validate so only well-formed items reach the executor, while
	// keeping one result slot per input item.
	requests := make([]CommandRequest, 0, len(items))
	slots := make([]int, 0, len(items))
	for i, item := range items {
		var body queueBody
		if err := json.Unmarshal(item.Body, &body); err != nil {
			results[i] = errorResult(item.MessageID, fmt.Errorf("%w: queue item body: %v", ErrProtocol, err))
			continue
		}
		if strings.TrimSpace(body.Command) == "" {
			results[i] = errorResult(item.MessageID, fmt.Errorf("%w: queue item missing command", ErrProtocol))
			continue
		}
		requests = append(requests, CommandRequest{
			ID:      item.MessageID,
			UserID:  item.UserID,
			Command: body.Command,
			Args:    body.Args,
		})
		slots = append(slots, i)
	}

	for j, res := range a.bridge.Dispatch(ctx, requests) {
		results[slots[j]] = res
	}
	return results
}
