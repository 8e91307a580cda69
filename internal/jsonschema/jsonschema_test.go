package jsonschema

import (
	"encoding/json"
	"testing"
)

type fetchInput struct {
	URL            string `json:"url" jsonschema:"description=The URL to fetch,required"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Request timeout in seconds,minimum=1,maximum=300"`
}

func TestFor_StructSchema(t *testing.T) {
	schema := For[fetchInput]()

	if schema.Type != "object" {
		t.Errorf("expected object schema, got %q", schema.Type)
	}

	urlProp, ok := schema.Properties["url"]
	if !ok {
		t.Fatal("expected url property")
	}
	if urlProp.Type != "string" {
		t.Errorf("expected string type for url, got %q", urlProp.Type)
	}
	if urlProp.Description != "The URL to fetch" {
		t.Errorf("unexpected description: %q", urlProp.Description)
	}

	if len(schema.Required) != 1 || schema.Required[0] != "url" {
		t.Errorf("expected required=[url], got %v", schema.Required)
	}

	timeoutProp, ok := schema.Properties["timeout_seconds"]
	if !ok {
		t.Fatal("expected timeout_seconds property")
	}
	if timeoutProp.Type != "integer" {
		t.Errorf("expected integer type, got %q", timeoutProp.Type)
	}
	if timeoutProp.Minimum == nil || *timeoutProp.Minimum != 1 {
		t.Errorf("expected minimum 1, got %v", timeoutProp.Minimum)
	}
	if timeoutProp.Maximum == nil || *timeoutProp.Maximum != 300 {
		t.Errorf("expected maximum 300, got %v", timeoutProp.Maximum)
	}
}

func TestFor_DescriptionWithCommas(t *testing.T) {
	type input struct {
		Query string `json:"query" jsonschema:"description=Search query, including operators, quoted phrases,required"`
	}

	schema := For[input]()
	prop := schema.Properties["query"]
	if prop.Description != "Search query, including operators, quoted phrases" {
		t.Errorf("commas in description not preserved: %q", prop.Description)
	}
	if len(schema.Required) != 1 {
		t.Errorf("required directive after comma-description lost: %v", schema.Required)
	}
}

func TestFor_EnumValues(t *testing.T) {
	type input struct {
		Op string `json:"op" jsonschema:"enum=add,enum=sub,required"`
	}

	schema := For[input]()
	prop := schema.Properties["op"]
	if len(prop.Enum) != 2 {
		t.Fatalf("expected 2 enum values, got %v", prop.Enum)
	}
	if prop.Enum[0] != "add" || prop.Enum[1] != "sub" {
		t.Errorf("unexpected enum values: %v", prop.Enum)
	}
}

func TestFor_NestedAndSliceFields(t *testing.T) {
	type inner struct {
		Name string `json:"name"`
	}
	type outer struct {
		Items []inner `json:"items"`
		Flag  bool    `json:"flag"`
	}

	schema := For[outer]()

	items := schema.Properties["items"]
	if items.Type != "array" {
		t.Fatalf("expected array type, got %q", items.Type)
	}
	if items.Items == nil || items.Items.Type != "object" {
		t.Errorf("expected object items schema, got %+v", items.Items)
	}
	if schema.Properties["flag"].Type != "boolean" {
		t.Errorf("expected boolean type for flag")
	}
}

func TestSchema_MarshalsWithoutEmptyFields(t *testing.T) {
	schema := For[struct {
		Name string `json:"name"`
	}]()

	encoded, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	for _, forbidden := range []string{"enum", "minimum", "maximum", "required"} {
		if jsonContains(string(encoded), forbidden) {
			t.Errorf("expected %q to be omitted from %s", forbidden, encoded)
		}
	}
}

func jsonContains(encoded, key string) bool {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(encoded), &decoded); err != nil {
		return false
	}
	_, ok := decoded[key]
	return ok
}
