package wire

import (
	"encoding/json"
	"testing"
)

// FuzzDecodeMessage fuzzes Request/Response unmarshaling directly, grounded
// on the predecessor's lilith-zero/fuzz/fuzz_targets/fuzz_jsonrpc.rs, which
// fuzzed the same envelope parsing. Request/Response must never panic on
// arbitrary bytes, parseable JSON or not.
func FuzzDecodeMessage(f *testing.F) {
	f.Add([]byte(`{"jsonrpc":"2.0","method":"ping","id":1}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"x"}}`))
	f.Add([]byte(`{"jsonrpc":"2.0","result":{},"id":1}`))
	f.Add([]byte(`{"jsonrpc":"2.0","error":{"code":-32600,"message":"bad"},"id":null}`))
	f.Add([]byte(`not json`))
	f.Add([]byte(``))
	f.Add([]byte(`null`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var req Request
		if err := json.Unmarshal(data, &req); err == nil {
			_ = req.Validate()
			_ = req.IsNotification()
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			_ = resp.Validate()
		}
	})
}
