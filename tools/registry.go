package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/petasbytes/toolchat/internal/protocol"
)

// Registry returns all tool definitions wired for the agent.
func Registry() []ToolDefinition {
	return []ToolDefinition{MemoryDefinition, TokenManagerDefinition, CalculatorDefinition}
}

// Describe renders the capability section of the system prompt: how to call
// a tool, then one entry per definition with its parameter schema.
func Describe(defs []ToolDefinition) string {
	if len(defs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Tools\n\n")
	b.WriteString("You can call tools by writing a block in exactly this format, anywhere in your reply:\n\n")
	b.WriteString(protocol.FormatCall(protocol.Call{
		Name:       "tool_name",
		Parameters: map[string]any{"param": "value"},
	}))
	b.WriteString("\n\nEach call is answered by a " + protocol.ResultOpen + " block placed right after it. ")
	b.WriteString("Parameters must be a JSON object. Call a tool only when it helps answer the user.\n\n")
	b.WriteString("Available tools:\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "\n## %s\n%s\n", d.Name, d.Description)
		if d.InputSchema.Properties != nil {
			if params, err := json.Marshal(d.InputSchema.Properties); err == nil && string(params) != "null" {
				fmt.Fprintf(&b, "Parameters: %s\n", params)
			}
		}
	}
	b.WriteString("\nExample:\n\n")
	b.WriteString(protocol.FormatCall(protocol.Call{
		Name:       "memory",
		Parameters: map[string]any{"operation": "search", "query": "deployment"},
	}))
	return b.String()
}
