package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/asaidimu/go-quire/core/schema"
)

func createEvent(
	eventType PersistenceEventType,
	operation string,
	collectionID string,
	input any,
	output any,
	err *string,
	issues []schema.Issue,
	startTime time.Time,
) PersistenceEvent {
	var duration *int64
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	var collection *string
	if collectionID != "" {
		collection = &collectionID
	}

	return PersistenceEvent{
		Type:       eventType,
		Timestamp:  time.Now().UnixMilli(),
		Operation:  operation,
		Collection: collection,
		Input:      input,
		Output:     output,
		Error:      err,
		Issues:     issues,
		Duration:   duration,
	}
}

func issuesOf(err error) []schema.Issue {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Issues
	}
	return nil
}

// normalize round-trips content through JSON so it holds only the generic
// types the validator and sandbox expect, and returns its encoding.
func normalize(content any) (any, json.RawMessage, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, nil, fmt.Errorf("content is not JSON-serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("decoding content: %w", err)
	}
	return out, raw, nil
}

func decodeContent(raw json.RawMessage) (any, error) {
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, unexpected("stored content is not valid JSON: %v", err)
	}
	return out, nil
}
