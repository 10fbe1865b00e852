package rpc

import "encoding/json"

// jsonrpcVersion is sent on every request.
const jsonrpcVersion = "2.0"

// toolsCallMethod is the wire method for every façade operation; the
// operation name travels in params.name.
const toolsCallMethod = "tools/call"

type request struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      int64    `json:"id"`
	Method  string   `json:"method"`
	Params  toolCall `json:"params"`
}

type toolCall struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

type response struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *responseError  `json:"error,omitempty"`
}

// responseError keeps code and data raw. Only message is interpreted;
// subordinates are free to send string codes or arbitrary data.
type responseError struct {
	Code    json.RawMessage `json:"code,omitempty"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// text returns message as a string. A message that is not a JSON string
// is returned as its raw JSON text.
func (e *responseError) text() string {
	var s string
	if err := json.Unmarshal(e.Message, &s); err == nil {
		return s
	}
	return string(e.Message)
}
