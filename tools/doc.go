// Package tools defines the capabilities the model can invoke through
// tool-call blocks, and the Executor that runs them.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - Capabilities: memory, token_manager, calculator.
//   - Executor: maps a parsed call to its handler; never panics, always yields a Result.
package tools
