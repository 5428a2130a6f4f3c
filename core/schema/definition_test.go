package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeDefinitionUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *TypeDefinition
		wantErr string
	}{
		{
			name:  "struct",
			input: `{"type":"struct","properties":{"a":{"type":"string"}},"nullable":["a"]}`,
			want:  Struct(map[string]*TypeDefinition{"a": String()}, "a"),
		},
		{
			name:  "string with format",
			input: `{"type":"string","format":"date"}`,
			want:  String(FormatDate),
		},
		{
			name:  "number literal",
			input: `{"type":"number_literal","value":3}`,
			want:  NumberLiteral(3),
		},
		{
			name:  "ref",
			input: `{"type":"ref","name":"Vendor"}`,
			want:  Ref("Vendor"),
		},
		{
			name:    "foreign field",
			input:   `{"type":"string","items":{"type":"string"}}`,
			wantErr: "mutual exclusivity",
		},
		{
			name:    "missing kind",
			input:   `{"properties":{}}`,
			wantErr: "missing 'type'",
		},
		{
			name:    "unknown kind",
			input:   `{"type":"date"}`,
			wantErr: "unknown type kind",
		},
		{
			name:    "format on wrong kind",
			input:   `{"type":"number","format":"date"}`,
			wantErr: "not supported",
		},
		{
			name:    "literal of wrong type",
			input:   `{"type":"boolean_literal","value":"yes"}`,
			wantErr: "must be a boolean",
		},
		{
			name:    "list without items",
			input:   `{"type":"list"}`,
			wantErr: "requires 'items'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got TypeDefinition
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, &got)
		})
	}
}

func TestSchemaJSONRoundTrip(t *testing.T) {
	original := expenseSchema()
	data, err := json.Marshal(original)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, original.Equal(parsed))

	parsed.Types["Vendor"].Properties["country"] = String()
	assert.False(t, original.Equal(parsed))
}

func TestFileSchemaJSONRoundTrip(t *testing.T) {
	original := &Schema{
		RootType: "Receipt",
		Types: map[string]*TypeDefinition{
			"Receipt": Struct(map[string]*TypeDefinition{
				"scan":  File(),
				"pages": List(File()),
			}, "pages"),
		},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rootType":"Receipt","types":{"Receipt":{"type":"struct",
		"properties":{"scan":{"type":"file"},"pages":{"type":"list","items":{"type":"file"}}},
		"nullable":["pages"]}}}`, string(data))

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, original.Equal(parsed))
}

func TestSchemaCheck(t *testing.T) {
	assert.Empty(t, expenseSchema().Check())

	broken := &Schema{
		RootType: "Missing",
		Types: map[string]*TypeDefinition{
			"A": Struct(map[string]*TypeDefinition{"b": Ref("Nowhere")}, "zzz"),
			"E": Enum(),
			"L": Ref("M"),
			"M": Ref("L"),
		},
	}
	got := codes(broken.Check())
	assert.ElementsMatch(t, []string{
		"UNKNOWN_TYPE@rootType",
		"INVALID_SCHEMA@types.A.nullable",
		"UNKNOWN_TYPE@types.A.properties.b",
		"INVALID_SCHEMA@types.E.members",
		"CIRCULAR_REFERENCE@types.L",
		"CIRCULAR_REFERENCE@types.M",
	}, got)
}
