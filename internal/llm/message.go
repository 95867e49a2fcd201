package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies who authored a message in a conversation context.
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of the context sent to the model.
type Message struct {
	Role    Role
	Content string
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// ParsedArguments decodes the JSON argument object into a flat string map.
// Non-string values keep their JSON text.
func (tc ToolCall) ParsedArguments() (map[string]string, error) {
	args := map[string]string{}
	if strings.TrimSpace(tc.Arguments) == "" {
		return args, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(tc.Arguments), &raw); err != nil {
		return nil, fmt.Errorf("decode arguments of %s: %w", tc.Name, err)
	}
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			args[k] = s
			continue
		}
		args[k] = string(v)
	}
	return args, nil
}

// Tool declares a callable function.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
	Strict      bool
}
