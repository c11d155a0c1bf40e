package mcpconn

import "encoding/json"

// decodeCapabilities extracts the top-level boolean capability flags from
// an `initialize` response's `capabilities` object (e.g. {"tools":{}}
// marks "tools" present).
func decodeCapabilities(raw []byte, out map[string]bool) error {
	var wire struct {
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	for k := range wire.Capabilities {
		out[k] = true
	}
	return nil
}

// decodeList decodes a `{"<field>": [...]}`-shaped list response, the
// common MCP discovery response shape for tools/resources/prompts.
func decodeList[T any](raw []byte, field string) ([]*T, error) {
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	payload, ok := wire[field]
	if !ok {
		return nil, nil
	}
	var items []*T
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, err
	}
	return items, nil
}
