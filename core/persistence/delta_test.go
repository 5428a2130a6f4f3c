package persistence

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaChainRoundTrip(t *testing.T) {
	contents := []string{
		`{"title":"Coffee","amount":3.5}`,
		`{"title":"Coffee","amount":4}`,
		`{"title":"Coffee beans","amount":4,"tags":["food"]}`,
		`{"title":"Coffee beans","amount":4,"tags":["food"]}`,
		`{"title":"Beans","tags":["food","shop"]}`,
	}

	var (
		records []VersionRecord
		prev    json.RawMessage
		prevID  string
	)
	for i, c := range contents {
		delta, err := computeDelta(prev, json.RawMessage(c))
		require.NoError(t, err)
		id := string(rune('a' + i))
		records = append(records, VersionRecord{ID: id, PreviousVersionID: prevID, Delta: delta})
		prev, prevID = json.RawMessage(c), id
	}

	chain := chainIndex(records)
	for i, want := range contents {
		t.Run(records[i].ID, func(t *testing.T) {
			got, err := reconstruct(chain, records[i].ID)
			require.NoError(t, err)
			assert.JSONEq(t, want, string(got))
		})
	}
}

func TestComputeDeltaNoChange(t *testing.T) {
	delta, err := computeDelta(json.RawMessage(`{"a":1}`), json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(delta))
}

func TestReconstructBrokenChains(t *testing.T) {
	tests := []struct {
		name    string
		records []VersionRecord
		target  string
		wantErr error
	}{
		{
			name:    "unknown target",
			records: []VersionRecord{{ID: "a", Delta: emptyDelta}},
			target:  "b",
			wantErr: ErrNotFound,
		},
		{
			name:    "missing ancestor",
			records: []VersionRecord{{ID: "b", PreviousVersionID: "a", Delta: emptyDelta}},
			target:  "b",
			wantErr: ErrUnexpected,
		},
		{
			name: "loop",
			records: []VersionRecord{
				{ID: "a", PreviousVersionID: "b", Delta: emptyDelta},
				{ID: "b", PreviousVersionID: "a", Delta: emptyDelta},
			},
			target:  "a",
			wantErr: ErrUnexpected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reconstruct(chainIndex(tt.records), tt.target)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
