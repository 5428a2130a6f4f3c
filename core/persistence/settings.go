package persistence

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/schema"
)

const (
	issueInvalidSchema    = "INVALID_SCHEMA"
	issueInvalidSetting   = "INVALID_SETTING"
	issueInvalidTransform = "INVALID_TRANSFORM"
)

var settingsValidate *validator.Validate

func init() {
	settingsValidate = validator.New(validator.WithRequiredStructEnabled())
	settingsValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// checkCollectionSettings validates the mutable collection properties.
func checkCollectionSettings(s CollectionSettings) []schema.Issue {
	err := settingsValidate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []schema.Issue{{Code: issueInvalidSetting, Message: err.Error()}}
	}
	issues := make([]schema.Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, schema.Issue{
			Code:    issueInvalidSetting,
			Message: settingMessage(fe),
			Path:    fe.Field(),
		})
	}
	return issues
}

func settingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// checkVersion validates a schema and its version settings. Every unit must
// compile; the root type must be a struct.
func checkVersion(sb *sandbox.Sandbox, s *schema.Schema, vs VersionSettings) []schema.Issue {
	if s == nil {
		return []schema.Issue{{Code: issueInvalidSchema, Message: "schema is required"}}
	}
	issues := s.Check()
	if len(issues) == 0 {
		if root := s.Root(); root == nil || root.Kind != schema.KindStruct {
			issues = append(issues, schema.Issue{
				Code:    issueInvalidSchema,
				Message: "root type must be a struct",
				Path:    "rootType",
			})
		}
	}

	if vs.Summary.IsZero() {
		issues = append(issues, schema.Issue{Code: issueInvalidSetting, Message: "summary getter is required", Path: "summary"})
	} else {
		issues = append(issues, checkUnit(sb, "summary", vs.Summary)...)
	}
	if vs.BlockingKeys != nil {
		issues = append(issues, checkUnit(sb, "blockingKeys", *vs.BlockingKeys)...)
	}
	if vs.Migration != nil {
		issues = append(issues, checkUnit(sb, "migration", *vs.Migration)...)
	}
	return issues
}

func checkUnit(sb *sandbox.Sandbox, path string, u sandbox.Unit) []schema.Issue {
	if err := sb.Check(u); err != nil {
		return []schema.Issue{{Code: issueInvalidTransform, Message: err.Error(), Path: path}}
	}
	return nil
}
