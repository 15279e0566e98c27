package types

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// SchemaViolation describes a single schema violation with its field path.
type SchemaViolation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (v *SchemaViolation) Error() string {
	if v.Path == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// ValidationError is the typed error surfaced when a Message's content (or
// a message map) fails validation. It carries every violation found.
type ValidationError struct {
	Violations []SchemaViolation `json:"violations"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	if len(e.Violations) == 1 {
		return e.Violations[0].Error()
	}
	msgs := make([]string, 0, len(e.Violations))
	for i := range e.Violations {
		msgs = append(msgs, e.Violations[i].Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Violations), strings.Join(msgs, "; "))
}

// NewValidationError builds a ValidationError with a single violation.
func NewValidationError(path, message string) *ValidationError {
	return &ValidationError{Violations: []SchemaViolation{{Path: path, Message: message}}}
}

// SchemaValidator validates a decoded JSON value against a JSONSchema.
type SchemaValidator interface {
	ValidateValue(value any, schema *JSONSchema) error
}

// DefaultValidator is the default implementation of SchemaValidator.
type DefaultValidator struct{}

// NewValidator creates a new DefaultValidator.
func NewValidator() *DefaultValidator {
	return &DefaultValidator{}
}

// Validate validates raw JSON data against a schema.
func (v *DefaultValidator) Validate(data []byte, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return NewValidationError("", fmt.Sprintf("invalid JSON: %v", err))
	}
	return v.ValidateValue(value, schema)
}

// ValidateValue validates an already-decoded value against a schema.
func (v *DefaultValidator) ValidateValue(value any, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}
	var violations []SchemaViolation
	v.validateValue(value, schema, "", &violations)
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (v *DefaultValidator) validateValue(value any, schema *JSONSchema, path string, violations *[]SchemaViolation) {
	if schema == nil {
		return
	}

	if schema.Const != nil {
		if !v.equalValues(value, schema.Const) {
			*violations = append(*violations, SchemaViolation{
				Path:    path,
				Message: fmt.Sprintf("value must be %v", schema.Const),
			})
		}
		return
	}

	if len(schema.Enum) > 0 {
		found := false
		for _, enumVal := range schema.Enum {
			if v.equalValues(value, enumVal) {
				found = true
				break
			}
		}
		if !found {
			*violations = append(*violations, SchemaViolation{
				Path:    path,
				Message: fmt.Sprintf("value must be one of: %v", schema.Enum),
			})
		}
	}

	if schema.Type != "" {
		v.validateType(value, schema, path, violations)
	}
}

func (v *DefaultValidator) validateType(value any, schema *JSONSchema, path string, violations *[]SchemaViolation) {
	switch schema.Type {
	case SchemaTypeString:
		v.validateString(value, schema, path, violations)
	case SchemaTypeNumber:
		v.validateNumber(value, schema, path, violations)
	case SchemaTypeInteger:
		v.validateInteger(value, schema, path, violations)
	case SchemaTypeBoolean:
		v.validateBoolean(value, path, violations)
	case SchemaTypeNull:
		v.validateNull(value, path, violations)
	case SchemaTypeObject:
		v.validateObject(value, schema, path, violations)
	case SchemaTypeArray:
		v.validateArray(value, schema, path, violations)
	}
}

func (v *DefaultValidator) validateString(value any, schema *JSONSchema, path string, violations *[]SchemaViolation) {
	str, ok := value.(string)
	if !ok {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("expected string, got %T", value),
		})
		return
	}

	if schema.MinLength != nil && len(str) < *schema.MinLength {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("string length %d is less than minimum %d", len(str), *schema.MinLength),
		})
	}
	if schema.MaxLength != nil && len(str) > *schema.MaxLength {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("string length %d exceeds maximum %d", len(str), *schema.MaxLength),
		})
	}
	if schema.Pattern != "" {
		matched, err := regexp.MatchString(schema.Pattern, str)
		if err != nil {
			*violations = append(*violations, SchemaViolation{
				Path:    path,
				Message: fmt.Sprintf("invalid pattern %q: %v", schema.Pattern, err),
			})
		} else if !matched {
			*violations = append(*violations, SchemaViolation{
				Path:    path,
				Message: fmt.Sprintf("string does not match pattern %q", schema.Pattern),
			})
		}
	}
}

func (v *DefaultValidator) validateNumber(value any, schema *JSONSchema, path string, violations *[]SchemaViolation) {
	num, ok := v.toFloat64(value)
	if !ok {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("expected number, got %T", value),
		})
		return
	}
	v.validateNumericConstraints(num, schema, path, violations)
}

func (v *DefaultValidator) validateInteger(value any, schema *JSONSchema, path string, violations *[]SchemaViolation) {
	num, ok := v.toFloat64(value)
	if !ok {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("expected integer, got %T", value),
		})
		return
	}
	if num != math.Trunc(num) {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("expected integer, got %v", num),
		})
		return
	}
	v.validateNumericConstraints(num, schema, path, violations)
}

func (v *DefaultValidator) validateNumericConstraints(num float64, schema *JSONSchema, path string, violations *[]SchemaViolation) {
	if schema.Minimum != nil && num < *schema.Minimum {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("value %v is less than minimum %v", num, *schema.Minimum),
		})
	}
	if schema.Maximum != nil && num > *schema.Maximum {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("value %v exceeds maximum %v", num, *schema.Maximum),
		})
	}
}

func (v *DefaultValidator) validateBoolean(value any, path string, violations *[]SchemaViolation) {
	if _, ok := value.(bool); !ok {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("expected boolean, got %T", value),
		})
	}
}

func (v *DefaultValidator) validateNull(value any, path string, violations *[]SchemaViolation) {
	if value != nil {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("expected null, got %T", value),
		})
	}
}

func (v *DefaultValidator) validateObject(value any, schema *JSONSchema, path string, violations *[]SchemaViolation) {
	obj, ok := value.(map[string]any)
	if !ok {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("expected object, got %T", value),
		})
		return
	}

	// Required means the key must be present. A null value is allowed so that
	// fields like a function result can carry an explicit null.
	for _, req := range schema.Required {
		if _, exists := obj[req]; !exists {
			*violations = append(*violations, SchemaViolation{
				Path:    v.joinPath(path, req),
				Message: "required field is missing",
			})
		}
	}

	for propName, propValue := range obj {
		propPath := v.joinPath(path, propName)
		propSchema, declared := schema.Properties[propName]
		if declared {
			// Null remains acceptable for declared optional-or-required keys;
			// only non-null values are checked against the property schema.
			if propValue != nil || propSchema.Type == SchemaTypeNull {
				v.validateValue(propValue, propSchema, propPath, violations)
			}
			continue
		}
		if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
			*violations = append(*violations, SchemaViolation{
				Path:    propPath,
				Message: "additional property not allowed",
			})
		}
	}
}

func (v *DefaultValidator) validateArray(value any, schema *JSONSchema, path string, violations *[]SchemaViolation) {
	arr, ok := value.([]any)
	if !ok {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("expected array, got %T", value),
		})
		return
	}

	if schema.MinItems != nil && len(arr) < *schema.MinItems {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("array has %d items, minimum is %d", len(arr), *schema.MinItems),
		})
	}
	if schema.MaxItems != nil && len(arr) > *schema.MaxItems {
		*violations = append(*violations, SchemaViolation{
			Path:    path,
			Message: fmt.Sprintf("array has %d items, maximum is %d", len(arr), *schema.MaxItems),
		})
	}
	if schema.Items != nil {
		for i, item := range arr {
			v.validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), violations)
		}
	}
}

func (v *DefaultValidator) toFloat64(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (v *DefaultValidator) equalValues(a, b any) bool {
	aNum, aIsNum := v.toFloat64(a)
	bNum, bIsNum := v.toFloat64(b)
	if aIsNum && bIsNum {
		return aNum == bNum
	}

	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return aStr == bStr
	}

	aBool, aIsBool := a.(bool)
	bBool, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		return aBool == bBool
	}

	if a == nil && b == nil {
		return true
	}

	aJSON, _ := json.Marshal(a)
	bJSON, _ := json.Marshal(b)
	return string(aJSON) == string(bJSON)
}

func (v *DefaultValidator) joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}
