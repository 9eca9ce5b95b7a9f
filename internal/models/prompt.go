package models

import (
	"encoding/json"
	"sort"
)

// FieldType is the primitive type of a schema field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

// Field describes one expected property of a structured response.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	// Items describes array elements (FieldArray) or nested properties (FieldObject).
	Items *Schema `json:"items,omitempty"`
	// ItemType is the element type of a primitive array when Items is nil.
	ItemType FieldType `json:"item_type,omitempty"`
}

// Schema describes the shape of a structured response.
type Schema struct {
	Fields []Field `json:"fields"`
}

// PromptRequest is one composed request for the inference service.
type PromptRequest struct {
	TopicText            string  `json:"topic_text"`
	Schema               *Schema `json:"schema,omitempty"`
	WantsInternetContext bool    `json:"wants_internet_context"`
	// System is an optional system instruction sent ahead of TopicText.
	System string `json:"system,omitempty"`
}

// Structured reports whether the request asks for schema-shaped JSON.
func (r PromptRequest) Structured() bool {
	return r.Schema != nil && len(r.Schema.Fields) > 0
}

// JSONSchema renders the schema as a JSON-Schema object.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	var required []string
	for _, f := range s.Fields {
		props[f.Name] = f.jsonSchema()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	sort.Strings(required)

	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func (f Field) jsonSchema() map[string]any {
	out := map[string]any{"type": string(f.Type)}
	if f.Description != "" {
		out["description"] = f.Description
	}
	switch f.Type {
	case FieldArray:
		switch {
		case f.Items != nil:
			out["items"] = f.Items.JSONSchema()
		case f.ItemType != "":
			out["items"] = map[string]any{"type": string(f.ItemType)}
		}
	case FieldObject:
		if f.Items != nil {
			nested := f.Items.JSONSchema()
			out["properties"] = nested["properties"]
			if req, ok := nested["required"]; ok {
				out["required"] = req
			}
		}
	}
	return out
}

// String renders the schema as indented JSON for prompt embedding.
func (s *Schema) String() string {
	b, err := json.MarshalIndent(s.JSONSchema(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// InferenceResult is the outcome of one inference call.
type InferenceResult struct {
	RequestID string `json:"request_id"`
	// FreeText is the raw completion text.
	FreeText string `json:"free_text,omitempty"`
	// Raw is the extracted JSON object for structured requests.
	Raw json.RawMessage `json:"raw,omitempty"`
	// Fields is Raw decoded into a generic map.
	Fields map[string]any `json:"fields,omitempty"`
	Model  string         `json:"model,omitempty"`
}
