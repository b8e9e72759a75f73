package wire

import (
	"encoding/json"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{JSONRPC: "2.0", Method: "tools/call"}, false},
		{"bad version", Request{JSONRPC: "1.0", Method: "tools/call"}, true},
		{"missing method", Request{JSONRPC: "2.0"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestIsNotification(t *testing.T) {
	r := Request{JSONRPC: "2.0", Method: "ping"}
	if !r.IsNotification() {
		t.Fatal("request with no id should be a notification")
	}

	id := NewID(json.RawMessage(`1`))
	r.ID = &id
	if r.IsNotification() {
		t.Fatal("request with an id should not be a notification")
	}
}

func TestResponseValidate(t *testing.T) {
	id := NewID(json.RawMessage(`1`))

	ok := Response{JSONRPC: "2.0", ID: id, Result: json.RawMessage(`{"ok":true}`)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid result-only response, got %v", err)
	}

	bad := Response{JSONRPC: "2.0", ID: id}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for response with neither result nor error")
	}

	both := Response{JSONRPC: "2.0", ID: id, Result: json.RawMessage(`1`), Error: NewInternalError()}
	if err := both.Validate(); err == nil {
		t.Fatal("expected error for response with both result and error")
	}
}

func TestIDRoundTrip(t *testing.T) {
	cases := []string{`1`, `"abc"`, `null`}
	for _, c := range cases {
		var id ID
		if err := json.Unmarshal([]byte(c), &id); err != nil {
			t.Fatalf("unmarshal %q: %v", c, err)
		}
		out, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != c {
			t.Fatalf("round trip mismatch: got %s want %s", out, c)
		}
	}
}
