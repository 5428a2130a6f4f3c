package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    Kind
		wantErr bool
	}{
		{"collection", "Collection_abc", Collection, false},
		{"document version", "DocumentVersion_1", DocumentVersion, false},
		{"file", New(File), File, false},
		{"no separator", "Document", "", true},
		{"empty remainder", "Document_", "", true},
		{"unknown kind", "Widget_1", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KindOf(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerators(t *testing.T) {
	id := New(Document)
	assert.True(t, strings.HasPrefix(id, "Document_"))
	assert.True(t, Is(id, Document))
	assert.False(t, Is(id, Collection))

	var seq SequentialGenerator
	assert.Equal(t, "Collection_1", seq.New(Collection))
	assert.Equal(t, "Document_2", seq.New(Document))
}
