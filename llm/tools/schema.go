package tools

import (
	"encoding/json"

	"github.com/BaSui01/agentflow-a2a/llm"
)

// ToolSchemaFor builds a schema from a raw JSON Schema literal.
func ToolSchemaFor(name, description, parameters string) llm.ToolSchema {
	return llm.ToolSchema{
		Name:        name,
		Description: description,
		Parameters:  json.RawMessage(parameters),
	}
}
