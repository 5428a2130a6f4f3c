package schema

import (
	"time"

	"github.com/go-openapi/strfmt"
)

var timeLayouts = []string{"15:04", "15:04:05", "15:04:05.000"}

// localDateTimeLayout also accepts a trailing fractional second when parsing.
const localDateTimeLayout = "2006-01-02T15:04:05"

// checkStringFormat reports whether s satisfies the string format f.
func checkStringFormat(f Format, s string) bool {
	switch f {
	case FormatDate:
		return strfmt.Default.Validates("date", s)
	case FormatDateTime:
		if strfmt.IsDateTime(s) {
			return true
		}
		_, err := time.Parse(localDateTimeLayout, s)
		return err == nil
	case FormatInstant:
		// an instant must carry its zone
		_, err := time.Parse(time.RFC3339Nano, s)
		return err == nil
	case FormatTime:
		for _, layout := range timeLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return true
			}
		}
		return false
	case FormatEmail:
		return strfmt.Default.Validates("email", s)
	case FormatURI:
		return strfmt.Default.Validates("uri", s)
	case FormatUUID:
		return strfmt.Default.Validates("uuid", s)
	}
	return true
}
