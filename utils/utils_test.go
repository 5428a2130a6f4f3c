package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	Detail string `json:"detail"`
}

type record struct {
	ID     string `json:"id"`
	Count  int    `json:"count,omitempty"`
	Nested inner  `json:"nested"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    record
		wantErr bool
	}{
		{
			name:  "plain map",
			input: map[string]any{"id": "a", "count": 2, "nested": map[string]any{"detail": "x"}},
			want:  record{ID: "a", Count: 2, Nested: inner{Detail: "x"}},
		},
		{
			name:  "raw message",
			input: map[string]any{"id": "b", "nested": json.RawMessage(`{"detail":"y"}`)},
			want:  record{ID: "b", Nested: inner{Detail: "y"}},
		},
		{name: "nil", input: nil, wantErr: true},
		{name: "wrong shape", input: map[string]any{"count": "many"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode[record](tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsNonStructs(t *testing.T) {
	_, err := Decode[map[string]any](map[string]any{})
	assert.Error(t, err)

	p, err := Decode[*record](map[string]any{"id": "c"})
	require.NoError(t, err)
	assert.Equal(t, "c", p.ID)
}
