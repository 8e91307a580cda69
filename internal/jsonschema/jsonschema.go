// Package jsonschema derives JSON Schema documents from Go types via
// reflection. Schemas are used to advertise tool parameters to language model
// providers. Field metadata is read from `jsonschema` struct tags:
//
//	type Input struct {
//	    URL string `json:"url" jsonschema:"description=The URL to fetch,required"`
//	}
//
// Supported tag directives: description=..., required, enum=..., minimum=N,
// maximum=N. Multiple enum directives accumulate.
package jsonschema

import (
	"reflect"
	"strconv"
	"strings"
)

// Schema is a JSON Schema document. Only the subset needed for tool parameter
// advertising is modeled.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties any                `json:"additionalProperties,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
}

// For derives the schema of type T. Structs map to "object" schemas whose
// properties are taken from exported fields; the property name comes from the
// json tag when present, otherwise the field name.
func For[T any]() *Schema {
	return fromType(reflect.TypeFor[T]())
}

func fromType(t reflect.Type) *Schema {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return fromStruct(t)
	case reflect.String:
		return &Schema{Type: "string"}
	case reflect.Bool:
		return &Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}
	case reflect.Slice, reflect.Array:
		return &Schema{Type: "array", Items: fromType(t.Elem())}
	case reflect.Map:
		return &Schema{Type: "object", AdditionalProperties: true}
	default:
		// Interfaces and other dynamic kinds carry no type constraint.
		return &Schema{}
	}
}

func fromStruct(t reflect.Type) *Schema {
	schema := &Schema{
		Type:                 "object",
		Properties:           map[string]*Schema{},
		AdditionalProperties: false,
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := propertyName(field)
		if name == "-" {
			continue
		}

		property := fromType(field.Type)
		required := applyTag(property, field.Tag.Get("jsonschema"))

		schema.Properties[name] = property
		if required {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

// propertyName returns the JSON property name for a struct field: the first
// element of the json tag when set, otherwise the Go field name.
func propertyName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

// applyTag parses the jsonschema struct tag into the given schema and reports
// whether the field is marked required. Commas inside a description are kept
// by treating everything after "description=" up to the next known directive
// as part of the description.
func applyTag(schema *Schema, tag string) bool {
	if tag == "" {
		return false
	}

	required := false
	for _, directive := range splitDirectives(tag) {
		key, value, _ := strings.Cut(directive, "=")
		switch key {
		case "description":
			schema.Description = value
		case "required":
			required = true
		case "enum":
			schema.Enum = append(schema.Enum, value)
		case "minimum":
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				schema.Minimum = &parsed
			}
		case "maximum":
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				schema.Maximum = &parsed
			}
		}
	}
	return required
}

// splitDirectives splits a jsonschema tag on commas, except that a comma
// belongs to the preceding description directive unless it starts another
// known directive. This lets descriptions contain commas without escaping.
func splitDirectives(tag string) []string {
	parts := strings.Split(tag, ",")
	var directives []string

	for _, part := range parts {
		if len(directives) > 0 && !isDirective(part) {
			// Continuation of the previous directive (a description with commas).
			directives[len(directives)-1] += "," + part
			continue
		}
		directives = append(directives, part)
	}

	return directives
}

func isDirective(part string) bool {
	for _, prefix := range []string{"description=", "enum=", "minimum=", "maximum="} {
		if strings.HasPrefix(part, prefix) {
			return true
		}
	}
	return part == "required"
}
