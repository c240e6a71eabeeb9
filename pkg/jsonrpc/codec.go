package jsonrpc

import (
	"encoding/json"
)

// rawEnvelope mirrors Request but keeps every field raw so validation can
// distinguish "absent" from "present but wrong type".
type rawEnvelope struct {
	JSONRPC json.RawMessage `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  json.RawMessage `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// DecodeRequest parses a single JSON-RPC 2.0 request.
// On failure the second return value is the error response to send back:
// -32700 for malformed JSON (null id), -32600 for a wrong version or a
// missing/non-string method (echoing the id when one was recovered).
func DecodeRequest(data []byte) (*Request, *Response) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ParseError(err.Error())
	}

	var version string
	if err := json.Unmarshal(env.JSONRPC, &version); err != nil || version != Version {
		return nil, InvalidRequest(normalizeID(env.ID), "jsonrpc must be \"2.0\"")
	}

	var method string
	if len(env.Method) == 0 {
		return nil, InvalidRequest(normalizeID(env.ID), "method is required")
	}
	if err := json.Unmarshal(env.Method, &method); err != nil || method == "" {
		return nil, InvalidRequest(normalizeID(env.ID), "method must be a non-empty string")
	}

	if !validID(env.ID) {
		return nil, InvalidRequest(nil, "id must be a string, number, or null")
	}

	return &Request{
		JSONRPC: version,
		ID:      normalizeID(env.ID),
		Method:  method,
		Params:  env.Params,
	}, nil
}

// normalizeID drops an id that is absent or not echoable.
func normalizeID(id json.RawMessage) json.RawMessage {
	if !validID(id) {
		return nil
	}
	return id
}

// validID reports whether the raw id is absent, null, a string, or a number.
// Objects, arrays, and booleans are rejected per JSON-RPC 2.0.
func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	switch id[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return json.Valid(id)
	default:
		return false
	}
}

// EncodeResponse serializes a response to its wire format.
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse parses a JSON-RPC 2.0 response. Used by tests and by the
// pipeline when it needs to inspect a backend reply without rewriting it.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
