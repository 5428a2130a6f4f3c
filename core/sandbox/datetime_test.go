package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayDate(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		ops     string
		output  string
		want    string
		wantErr bool
	}{
		{"identity instant", "2024-03-15T10:20:30Z", "[]", outputDateTime, "2024-03-15T10:20:30.000Z", false},
		{"calendar date", "2024-03-15T23:59:00+02:00", "[]", outputDate, "2024-03-15", false},
		{"local date literal", "2024-03-15", "[]", outputDateTime, "2024-03-15T00:00:00.000Z", false},
		{"start of month", "2024-03-15T10:20:30Z", `[{"op":"startOf","unit":"month"}]`, outputDateTime, "2024-03-01T00:00:00.000Z", false},
		{"end of month", "2024-02-10", `[{"op":"endOf","unit":"month"}]`, outputDateTime, "2024-02-29T23:59:59.999Z", false},
		{"start of ISO week", "2024-03-17", `[{"op":"startOf","unit":"week"}]`, outputDate, "2024-03-11", false},
		{"start of quarter", "2024-05-20", `[{"op":"startOf","unit":"quarter"}]`, outputDate, "2024-04-01", false},
		{"plus month clamps", "2024-01-31", `[{"op":"plus","values":{"months":1}}]`, outputDate, "2024-02-29", false},
		{"minus year clamps", "2024-02-29", `[{"op":"minus","values":{"years":1}}]`, outputDate, "2023-02-28", false},
		{"plus mixed", "2024-03-15T10:00:00Z", `[{"op":"plus","values":{"days":1,"hours":2,"minutes":30}}]`, outputDateTime, "2024-03-16T12:30:00.000Z", false},
		{"minus across year", "2024-01-15", `[{"op":"minus","values":{"months":13}}]`, outputDate, "2022-12-15", false},
		{"set fields", "2024-03-15T10:00:00Z", `[{"op":"set","values":{"day":1,"hour":8}}]`, outputDateTime, "2024-03-01T08:00:00.000Z", false},
		{"set month clamps day", "2024-03-31", `[{"op":"set","values":{"month":2}}]`, outputDate, "2024-02-29", false},
		{"set plural fields", "2024-03-15T10:00:00Z", `[{"op":"set","values":{"days":3,"Hours":6}}]`, outputDateTime, "2024-03-03T06:00:00.000Z", false},
		{"set plural day out of range", "2024-02-01", `[{"op":"set","values":{"days":30}}]`, outputDate, "", true},
		{"chain", "2024-03-15T10:00:00Z", `[{"op":"startOf","unit":"year"},{"op":"plus","values":{"weeks":2}},{"op":"endOf","unit":"day"}]`, outputDateTime, "2024-01-15T23:59:59.999Z", false},
		{"keeps offset", "2024-03-15T10:00:00+05:30", `[{"op":"startOf","unit":"day"}]`, outputDateTime, "2024-03-15T00:00:00.000+05:30", false},
		{"bad literal", "15/03/2024", "[]", outputDate, "", true},
		{"bad unit", "2024-03-15", `[{"op":"startOf","unit":"fortnight"}]`, outputDate, "", true},
		{"fractional month", "2024-03-15", `[{"op":"plus","values":{"months":1.5}}]`, outputDate, "", true},
		{"set day out of range", "2024-02-01", `[{"op":"set","values":{"day":30}}]`, outputDate, "", true},
		{"unknown op", "2024-02-01", `[{"op":"shuffle"}]`, outputDate, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := replayDate(tt.literal, tt.ops, tt.output, time.UTC)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGuestDateTime(t *testing.T) {
	sb := newTestSandbox()

	tests := []struct {
		name  string
		code  string
		input any
		want  any
	}{
		{
			name: "chained calendar arithmetic",
			code: `module.exports = function (c) {
				return DateTime.fromISO(c.date).startOf("month").plus({ months: 1 }).minus({ days: 1 }).toCalendarDateString();
			};`,
			input: map[string]any{"date": "2024-02-10"},
			want:  "2024-02-29",
		},
		{
			name: "values are immutable",
			code: `module.exports = function () {
				var base = DateTime.fromISO("2024-03-15T10:00:00Z");
				base.plus({ days: 3 });
				return base.toISODateTimeString();
			};`,
			want: "2024-03-15T10:00:00.000Z",
		},
		{
			name: "set accepts plural units",
			code: `module.exports = function () {
				var d = DateTime.fromISO("2024-03-15");
				return [d.set({ days: 3 }).toCalendarDateString(), d.set({ day: 3 }).toCalendarDateString()];
			};`,
			want: []any{"2024-03-03", "2024-03-03"},
		},
		{
			name: "now is injected",
			code: `module.exports = function () { return DateTime.now().toCalendarDateString(); };`,
			want: "2024-03-15",
		},
		{
			name: "serializes through toJSON",
			code: `module.exports = function () { return { at: DateTime.fromISO("2024-03-15").endOf("day") }; };`,
			want: map[string]any{"at": "2024-03-15T23:59:59.999Z"},
		},
		{
			name: "host errors are catchable",
			code: `module.exports = function () {
				try { return DateTime.fromISO("nonsense").toISODateTimeString(); } catch (e) { return "caught"; }
			};`,
			want: "caught",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sb.Run(context.Background(), unit(tt.code), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("uncaught host error is a runtime failure", func(t *testing.T) {
		_, err := sb.Run(context.Background(), unit(`module.exports = function () { return DateTime.fromISO("x").toCalendarDateString(); };`), nil)
		requireFailure(t, err, RuntimeFailure)
	})

	t.Run("frozen values reject mutation", func(t *testing.T) {
		_, err := sb.Run(context.Background(), unit(`module.exports = function () { "use strict"; var d = DateTime.fromISO("2024-01-01"); d._literal = "x"; return 1; };`), nil)
		requireFailure(t, err, RuntimeFailure)
	})
}
