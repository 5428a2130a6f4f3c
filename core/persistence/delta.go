package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/wI2L/jsondiff"
)

var (
	emptyDocument = json.RawMessage(`{}`)
	emptyDelta    = json.RawMessage(`[]`)
)

// computeDelta returns the RFC 6902 patch turning prev into next. A nil prev
// is treated as the empty object.
func computeDelta(prev, next json.RawMessage) (json.RawMessage, error) {
	if prev == nil {
		prev = emptyDocument
	}
	patch, err := jsondiff.CompareJSON(prev, next)
	if err != nil {
		return nil, fmt.Errorf("computing delta: %w", err)
	}
	if len(patch) == 0 {
		return emptyDelta, nil
	}
	out, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encoding delta: %w", err)
	}
	return out, nil
}

// applyDelta applies a stored patch to doc.
func applyDelta(doc, delta json.RawMessage) (json.RawMessage, error) {
	if len(delta) == 0 || bytes.Equal(bytes.TrimSpace(delta), emptyDelta) {
		return doc, nil
	}
	patch, err := jsonpatch.DecodePatch(delta)
	if err != nil {
		return nil, fmt.Errorf("decoding delta: %w", err)
	}
	out, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("applying delta: %w", err)
	}
	return out, nil
}

// reconstruct rebuilds the content of target from the chain's deltas: it
// walks previous-version pointers back to the root, then replays the
// collected deltas forward from {}.
func reconstruct(chain map[string]VersionRecord, target string) (json.RawMessage, error) {
	var path []VersionRecord
	seen := make(map[string]struct{}, len(chain))
	for id := target; id != ""; {
		if _, loop := seen[id]; loop {
			return nil, unexpected("version chain of %s loops at %s", target, id)
		}
		seen[id] = struct{}{}

		rec, ok := chain[id]
		if !ok {
			if id == target {
				return nil, notFound("document version", id)
			}
			return nil, unexpected("version chain of %s is missing %s", target, id)
		}
		path = append(path, rec)
		id = rec.PreviousVersionID
	}

	doc := emptyDocument
	for i := len(path) - 1; i >= 0; i-- {
		next, err := applyDelta(doc, path[i].Delta)
		if err != nil {
			return nil, fmt.Errorf("replaying %s: %w", path[i].ID, err)
		}
		doc = next
	}
	return doc, nil
}

// chainIndex keys version records by id.
func chainIndex(records []VersionRecord) map[string]VersionRecord {
	m := make(map[string]VersionRecord, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	return m
}
