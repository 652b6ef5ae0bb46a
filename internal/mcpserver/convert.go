package mcpserver

import "encoding/json"

// responseToOutput round-trips resp through its JSON encoding so the MCP
// tool result matches process_intent's envelope exactly (same field
// names, same omitempty behavior) without duplicating Response's shape
// here.
func responseToOutput(resp any) (IntentOutput, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var out IntentOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
