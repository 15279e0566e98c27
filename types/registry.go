package types

import "sync"

// SchemaRegistry maps message types to the content schema a message of that
// type must satisfy. It is an explicit object rather than process-global
// mutable state so tests can construct a fresh registry in isolation.
type SchemaRegistry struct {
	mu        sync.RWMutex
	schemas   map[MessageType]*JSONSchema
	validator SchemaValidator
}

// NewSchemaRegistry creates an empty registry using the default validator.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		schemas:   make(map[MessageType]*JSONSchema),
		validator: NewValidator(),
	}
}

// NewBuiltinSchemaRegistry creates a registry pre-populated with the content
// schemas for the built-in message types.
func NewBuiltinSchemaRegistry() *SchemaRegistry {
	r := NewSchemaRegistry()
	r.Register(MessageTypeText, TextContentSchema())
	r.Register(MessageTypeFunctionCall, FunctionCallContentSchema())
	r.Register(MessageTypeFunctionResult, FunctionResultContentSchema())
	r.Register(MessageTypeError, ErrorContentSchema())
	r.Register(MessageTypeSystem, SystemContentSchema())
	return r
}

// Register registers (or replaces) the schema for a message type.
func (r *SchemaRegistry) Register(t MessageType, schema *JSONSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[t] = schema
}

// Schema resolves the schema registered for a message type.
func (r *SchemaRegistry) Schema(t MessageType) (*JSONSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[t]
	return s, ok
}

// ValidateContent validates a content payload against the schema registered
// for the given message type. An unregistered type fails validation: every
// message must have a known shape.
func (r *SchemaRegistry) ValidateContent(t MessageType, content map[string]any) error {
	schema, ok := r.Schema(t)
	if !ok {
		return NewValidationError("message_type", "no schema registered for message type "+string(t))
	}
	var value map[string]any
	if content != nil {
		value = content
	} else {
		value = map[string]any{}
	}
	return r.validator.ValidateValue(value, schema)
}

// defaultRegistry serves NewMessage and friends. It is fully populated at
// init and never mutated afterwards; callers needing isolation pass their
// own registry via NewMessageWithRegistry.
var defaultRegistry = NewBuiltinSchemaRegistry()

// DefaultSchemaRegistry returns the registry used by the package-level
// message constructors.
func DefaultSchemaRegistry() *SchemaRegistry {
	return defaultRegistry
}

// TextContentSchema describes the content of a text message.
func TextContentSchema() *JSONSchema {
	return NewObjectSchema().
		AddProperty("text", NewStringSchema()).
		AddProperty("format", NewEnumSchema(string(TextFormatPlain), string(TextFormatMarkdown), string(TextFormatHTML)).WithDefault(string(TextFormatPlain))).
		AddRequired("text")
}

// FunctionCallContentSchema describes the content of a function call message.
func FunctionCallContentSchema() *JSONSchema {
	return NewObjectSchema().
		AddProperty("name", NewStringSchema()).
		AddProperty("arguments", NewObjectSchema()).
		AddProperty("description", NewStringSchema()).
		AddRequired("name", "arguments")
}

// FunctionResultContentSchema describes the content of a function result
// message. The result key must be present but its value may be any
// JSON-serializable value including null, so it carries no type constraint.
func FunctionResultContentSchema() *JSONSchema {
	return NewObjectSchema().
		AddProperty("name", NewStringSchema()).
		AddProperty("result", &JSONSchema{}).
		AddRequired("name", "result")
}

// ErrorContentSchema describes the content of an error message.
func ErrorContentSchema() *JSONSchema {
	return NewObjectSchema().
		AddProperty("error_type", NewStringSchema()).
		AddProperty("error_message", NewStringSchema()).
		AddProperty("traceback", NewStringSchema()).
		AddRequired("error_type", "error_message")
}

// SystemContentSchema describes the content of a system message.
func SystemContentSchema() *JSONSchema {
	return NewObjectSchema().
		AddProperty("system_message_type", NewEnumSchema("info", "warning", "error", "debug")).
		AddProperty("system_message", NewStringSchema()).
		AddRequired("system_message_type", "system_message")
}
