package gemini

import (
	"google.golang.org/genai"

	"github.com/hal9000y/workspace-agent/internal/agent"
)

func convertTools(tools []agent.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	funcs := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		funcs[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
		// Gemini rejects object parameters without properties.
		if props, _ := t.Parameters["properties"].(map[string]any); len(props) > 0 {
			funcs[i].Parameters = convertSchema(t.Parameters)
		}
	}

	return []*genai.Tool{{FunctionDeclarations: funcs}}
}

// convertSchema maps a JSON Schema object onto genai.Schema.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{}

	switch schema["type"] {
	case "string":
		result.Type = genai.TypeString
	case "number":
		result.Type = genai.TypeNumber
	case "integer":
		result.Type = genai.TypeInteger
	case "boolean":
		result.Type = genai.TypeBoolean
	case "array":
		result.Type = genai.TypeArray
	case "object":
		result.Type = genai.TypeObject
	}

	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}
	if def, ok := schema["default"]; ok {
		result.Default = def
	}
	result.Enum = stringList(schema["enum"])
	result.Required = stringList(schema["required"])

	if props, ok := schema["properties"].(map[string]any); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				result.Properties[name] = convertSchema(propMap)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		result.Items = convertSchema(items)
	}

	return result
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		if len(l) == 0 {
			return nil
		}
		return l
	case []any:
		var out []string
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}

	return nil
}
