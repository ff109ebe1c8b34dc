package config

// FieldType is a JSON Schema primitive type.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeBoolean FieldType = "boolean"
	TypeInteger FieldType = "integer"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Rule describes one HostConfig field.
type Rule struct {
	Field       string
	Type        FieldType
	Items       FieldType // element type for arrays, value type for objects
	Required    bool
	NonEmpty    bool
	Description string
}

// Rules is the validation table for a single host entry.
var Rules = []Rule{
	{Field: "host", Type: TypeString, Required: true, NonEmpty: true, Description: "SSH destination"},
	{Field: "user", Type: TypeString, Description: "SSH login user"},
	{Field: "needsSudo", Type: TypeBoolean, Description: "Run restic through sudo"},
	{Field: "backupPassword", Type: TypeString, Required: true, Description: "Repository password"},
	{Field: "repository", Type: TypeString, Required: true, Description: "Restic repository locator"},
	{Field: "files", Type: TypeArray, Items: TypeString, Required: true, NonEmpty: true, Description: "Paths to back up"},
	{Field: "exclude", Type: TypeArray, Items: TypeString, Description: "Exclude patterns"},
	{Field: "env", Type: TypeObject, Items: TypeString, Description: "Environment passed to restic"},
	{Field: "preCommand", Type: TypeString, Description: "Command run before the backup"},
	{Field: "postCommand", Type: TypeString, Description: "Command run after the backup"},
	{Field: "keepLastSnapshots", Type: TypeInteger, Description: "Snapshots kept by restic forget"},
}

// SchemaDraft is the JSON Schema dialect emitted by Schema.
const SchemaDraft = "http://json-schema.org/draft-04/schema#"

// Schema compiles Rules into a JSON Schema document for one host entry.
// Unknown properties are allowed.
func Schema() map[string]interface{} {
	return compileRules(Rules)
}

func compileRules(rules []Rule) map[string]interface{} {
	properties := make(map[string]interface{}, len(rules))
	required := make([]string, 0, len(rules))

	for _, r := range rules {
		prop := map[string]interface{}{
			"type": string(r.Type),
		}
		if r.Description != "" {
			prop["description"] = r.Description
		}
		switch r.Type {
		case TypeArray:
			if r.Items != "" {
				prop["items"] = map[string]interface{}{"type": string(r.Items)}
			}
			if r.NonEmpty {
				prop["minItems"] = 1
			}
		case TypeObject:
			if r.Items != "" {
				prop["additionalProperties"] = map[string]interface{}{"type": string(r.Items)}
			}
			if r.NonEmpty {
				prop["minProperties"] = 1
			}
		case TypeString:
			if r.NonEmpty {
				prop["minLength"] = 1
			}
		}
		properties[r.Field] = prop
		if r.Required {
			required = append(required, r.Field)
		}
	}

	return map[string]interface{}{
		"$schema":    SchemaDraft,
		"title":      "HostConfig",
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
