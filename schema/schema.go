// Package schema describes registry manifests as a JSON Schema document so
// editors can lint manifests before they are pushed.
package schema

// ID is the canonical identifier of the manifest schema.
const ID = "https://spellbook.dev/schema/manifest.json"

// Manifest returns the JSON Schema of a registry manifest. Unknown fields are
// allowed, matching what the service accepts.
func Manifest() map[string]any {
	placeholder := ObjectSchema(map[string]any{
		"name":        StringProperty("Placeholder name as it appears in the command, without brackets."),
		"description": StringProperty("What value the placeholder expects."),
	}, "name", "description")

	entry := ObjectSchema(map[string]any{
		"command":      StringProperty("The invocation text, e.g. \"git log --oneline\"."),
		"description":  StringProperty("What the command does; embedded together with the command for search."),
		"placeholders": NullableArrayProperty("Templated arguments of the command.", placeholder),
	}, "command", "description")

	manifest := ObjectSchema(map[string]any{
		"name":     StringProperty("Name of the registry file."),
		"commands": ArrayProperty("Commands defined by this file.", entry),
	}, "name", "commands")
	manifest["$schema"] = "https://json-schema.org/draft/2020-12/schema"
	manifest["$id"] = ID
	manifest["title"] = "Spellbook registry manifest"
	return manifest
}

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

// ArrayProperty creates an array property with the given item type.
func ArrayProperty(description string, itemType map[string]any) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       itemType,
	}
}

// NullableArrayProperty is ArrayProperty that also accepts null.
func NullableArrayProperty(description string, itemType map[string]any) map[string]any {
	prop := ArrayProperty(description, itemType)
	prop["type"] = []string{"array", "null"}
	return prop
}
