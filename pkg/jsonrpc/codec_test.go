package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	req, errResp := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"linear_get_teams","arguments":{"limit":5}}}`))
	if errResp != nil {
		t.Fatalf("unexpected error response: %+v", errResp.Error)
	}
	if req.Method != "tools/call" {
		t.Errorf("expected method 'tools/call', got %q", req.Method)
	}
	if string(req.ID) != "1" {
		t.Errorf("expected id '1', got %q", string(req.ID))
	}
	if req.IsNotification() {
		t.Error("request with id must not be a notification")
	}
}

func TestDecodeRequestMalformed(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantCode int
		wantNull bool // response id must be null
	}{
		{
			name:     "not valid json",
			data:     `{not valid`,
			wantCode: CodeParseError,
			wantNull: true,
		},
		{
			name:     "empty object",
			data:     `{}`,
			wantCode: CodeInvalidRequest,
			wantNull: true,
		},
		{
			name:     "missing jsonrpc version",
			data:     `{"id":1,"method":"test"}`,
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "wrong jsonrpc version",
			data:     `{"jsonrpc":"1.0","id":1,"method":"test"}`,
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "method not a string",
			data:     `{"jsonrpc":"2.0","id":"a","method":42}`,
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "object id",
			data:     `{"jsonrpc":"2.0","id":{"x":1},"method":"tools/list"}`,
			wantCode: CodeInvalidRequest,
			wantNull: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, errResp := DecodeRequest([]byte(tt.data))
			if req != nil {
				t.Fatalf("expected decode failure, got request %+v", req)
			}
			if errResp == nil || errResp.Error == nil {
				t.Fatal("expected error response")
			}
			if errResp.Error.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, errResp.Error.Code)
			}
			if tt.wantNull && string(errResp.ID) != "null" {
				t.Errorf("expected null id, got %q", string(errResp.ID))
			}
		})
	}
}

func TestDecodeNotification(t *testing.T) {
	req, errResp := DecodeRequest([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if errResp != nil {
		t.Fatalf("unexpected error response: %+v", errResp.Error)
	}
	if !req.IsNotification() {
		t.Error("request without id must be a notification")
	}
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	// The id must survive encode/decode bit-exactly for every JSON type.
	ids := []string{`1`, `"req-a"`, `null`, `3.5`, `-7`}

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			resp := NewResult(json.RawMessage(id), json.RawMessage(`{"ok":true}`))
			encoded, err := EncodeResponse(resp)
			if err != nil {
				t.Fatalf("EncodeResponse failed: %v", err)
			}
			decoded, err := DecodeResponse(encoded)
			if err != nil {
				t.Fatalf("DecodeResponse failed: %v", err)
			}
			if !IDEquals(decoded.ID, json.RawMessage(id)) {
				t.Errorf("id changed across round trip: %q -> %q", id, string(decoded.ID))
			}
			if string(decoded.Result) != `{"ok":true}` {
				t.Errorf("result changed across round trip: %q", string(decoded.Result))
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	id := json.RawMessage(`"x"`)

	tests := []struct {
		name string
		resp *Response
		code int
		msg  string
	}{
		{"parse", ParseError("bad json"), CodeParseError, "Parse error"},
		{"invalid request", InvalidRequest(id, "no method"), CodeInvalidRequest, "Invalid Request"},
		{"method not found", MethodNotFound(id, "nope"), CodeMethodNotFound, "Method not found"},
		{"invalid params", InvalidParams(id, "missing name"), CodeInvalidParams, "Invalid params"},
		{"internal", InternalError(id, "boom"), CodeInternalError, "Internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.resp.Error == nil {
				t.Fatal("expected error object")
			}
			if tt.resp.Error.Code != tt.code {
				t.Errorf("expected code %d, got %d", tt.code, tt.resp.Error.Code)
			}
			if tt.resp.Error.Message != tt.msg {
				t.Errorf("expected message %q, got %q", tt.msg, tt.resp.Error.Message)
			}
		})
	}

	if string(ParseError("x").ID) != "null" {
		t.Error("parse error must carry a null id")
	}
}

func TestRouteTarget(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantKey string
		wantGen string
		missing bool
	}{
		{
			name:    "tools call",
			data:    `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"linear_get_teams"}}`,
			wantKey: "linear_get_teams",
			wantGen: "tools/call",
		},
		{
			name:    "resources read",
			data:    `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"file:///etc/motd"}}`,
			wantKey: "file:///etc/motd",
			wantGen: "resources/read",
		},
		{
			name:    "prompts get",
			data:    `{"jsonrpc":"2.0","id":1,"method":"prompts/get","params":{"name":"summarize"}}`,
			wantKey: "summarize",
			wantGen: "prompts/get",
		},
		{
			name:    "generic method",
			data:    `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
			wantKey: "",
			wantGen: "tools/list",
		},
		{
			name:    "tools call without name",
			data:    `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`,
			missing: true,
		},
		{
			name:    "tools call without params",
			data:    `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`,
			missing: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, errResp := DecodeRequest([]byte(tt.data))
			if errResp != nil {
				t.Fatalf("unexpected decode error: %+v", errResp.Error)
			}
			target, err := req.RouteTarget()
			if tt.missing {
				if !errors.Is(err, ErrMissingTarget) {
					t.Fatalf("expected ErrMissingTarget, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RouteTarget failed: %v", err)
			}
			if target.CapabilityKey() != tt.wantKey {
				t.Errorf("expected capability key %q, got %q", tt.wantKey, target.CapabilityKey())
			}
			if target.Method() != tt.wantGen {
				t.Errorf("expected method %q, got %q", tt.wantGen, target.Method())
			}
		})
	}
}
