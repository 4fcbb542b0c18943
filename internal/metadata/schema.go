package metadata

import (
	"encoding/json"
)

// SchemaVersion identifies the metadata layout written next to each summary.
const SchemaVersion = "2025-06"

// AttributesKey is the top-level object that holds every extracted field.
const AttributesKey = "metadataAttributes"

// Field describes one metadata attribute.
type Field struct {
	Name        string
	Type        string
	Description string
	MaxLength   int
	Required    bool
}

// Schema is the fixed description of the metadata document sent to the model and used by
// Validate.
type Schema struct {
	Version     string
	Description string
	Fields      []Field
}

// DefaultSchema is the meeting-minutes schema. It must stay constant at runtime.
var DefaultSchema = Schema{
	Version:     SchemaVersion,
	Description: "Simplified schema for analyzing and summarizing meeting minutes",
	Fields: []Field{
		{Name: "customer", Type: "string", Description: "Unique identifier for the customer name.", MaxLength: 50},
		{Name: "customer_category", Type: "string", Description: "Customer category, for example restaurant, supermarket, hotel and so on. English only", MaxLength: 50, Required: true},
		{Name: "sentiment", Type: "string", Description: "the deal is positive or negative", MaxLength: 10, Required: true},
		{Name: "date", Type: "string", Description: "meeting date, yyyy-MM-dd format", MaxLength: 15},
		{Name: "title", Type: "string", Description: "Short title of the meeting.", MaxLength: 20, Required: true},
		{Name: "revenue", Type: "string", Description: "The amount of the contract, proposal, or estimate within the deal. If there is no information about the amount, set it to None"},
		{Name: "practicality_score", Type: "string", Description: "The practicality of this deal. The degree to which this negotiation becomes good practice or information for other sales, marketing, and product development. Estimate practicality between 0 and 100 (maximum 100)", Required: true},
		{Name: "keywords", Type: "string", Description: "The keyword for this deal. Words that have appeared multiple times in business negotiations or words that symbolize business negotiations", Required: true},
	},
}

// RequiredFields lists the names of required attributes in schema order.
func (s Schema) RequiredFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// JSON renders the schema as a JSON Schema document. Attributes are nested under
// metadataAttributes, which is the only required top-level property.
func (s Schema) JSON() ([]byte, error) {
	props := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		p := map[string]any{
			"type":        f.Type,
			"description": f.Description,
		}
		if f.MaxLength > 0 {
			p["maxLength"] = f.MaxLength
		}
		props[f.Name] = p
	}
	doc := map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         "meeting-metadata/" + s.Version,
		"description": s.Description,
		"type":        "object",
		"properties": map[string]any{
			AttributesKey: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   s.RequiredFields(),
			},
		},
		"required": []string{AttributesKey},
	}
	return json.Marshal(doc)
}
