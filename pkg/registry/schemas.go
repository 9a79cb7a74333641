package registry

import (
	"fmt"
	"strings"

	"github.com/flowmail/journey/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// configSchemas holds the JSON schema for each step type's config. The
// definition service validates every step against its schema on save, so
// decode failures at execution time indicate corrupted data, not bad input.
var configSchemas = map[models.StepType]map[string]any{
	models.StepTypeTrigger: {
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{},
	},
	models.StepTypeSendEmail: {
		"type": "object",
		"properties": map[string]any{
			"template_id": map[string]any{"type": "string"},
			"subject":     map[string]any{"type": "string"},
			"body":        map[string]any{"type": "string"},
		},
		"anyOf": []any{
			map[string]any{"required": []any{"template_id"}},
			map[string]any{"required": []any{"subject"}},
		},
	},
	models.StepTypeDelay: {
		"type":     "object",
		"required": []any{"amount", "unit"},
		"properties": map[string]any{
			"amount": map[string]any{"type": "integer", "minimum": 1},
			"unit":   map[string]any{"type": "string", "enum": []any{"minutes", "hours", "days"}},
		},
	},
	models.StepTypeWaitForEvent: {
		"type":     "object",
		"required": []any{"event_name"},
		"properties": map[string]any{
			"event_name": map[string]any{"type": "string", "minLength": 1},
			"timeout_ms": map[string]any{"type": "integer", "minimum": 1},
		},
	},
	models.StepTypeCondition: {
		"type":     "object",
		"required": []any{"field", "operator"},
		"properties": map[string]any{
			"field":    map[string]any{"type": "string", "minLength": 1},
			"operator": map[string]any{"type": "string", "minLength": 1},
			"value":    map[string]any{},
			"unit":     map[string]any{"type": "string", "enum": []any{"days", "hours", "minutes"}},
		},
	},
	models.StepTypeWebhook: {
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":    map[string]any{"type": "string", "format": "uri"},
			"method": map[string]any{"type": "string", "enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
	},
	models.StepTypeUpdateContact: {
		"type":     "object",
		"required": []any{"fields"},
		"properties": map[string]any{
			"fields": map[string]any{
				"type":          "object",
				"minProperties": 1,
			},
		},
	},
	models.StepTypeExit: {
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
		},
	},
}

// ValidateStepConfig checks a step's config against its type's schema.
func ValidateStepConfig(stepType models.StepType, config map[string]any) error {
	schema, ok := configSchemas[stepType]
	if !ok {
		return fmt.Errorf("unknown step type '%s'", stepType)
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var problems []string
		for _, schemaError := range result.Errors() {
			problems = append(problems, schemaError.String())
		}

		return fmt.Errorf("invalid %s config: %s", stepType, strings.Join(problems, "; "))
	}

	return nil
}
