package codec

import "testing"

// BenchmarkDecode measures a single Feed+Decode cycle for one well-formed
// message, the hot path exercised once per request on the supervisor's
// stdout/stdin readers.
func BenchmarkDecode(b *testing.B) {
	body := []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"read_file","arguments":{"path":"/tmp/x"}}}`)
	framed := Encode(body)

	b.ResetTimer()
	for b.Loop() {
		d := NewDecoder()
		d.Feed(framed)
		if _, err := d.Decode(); err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
	}
}

// BenchmarkDecodeChunked measures the same decode with input split into
// small reads, the shape production traffic actually arrives in from
// supervisor.go's chunked r.Read calls.
func BenchmarkDecodeChunked(b *testing.B) {
	body := []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"read_file","arguments":{"path":"/tmp/x"}}}`)
	framed := Encode(body)
	const chunkSize = 16

	b.ResetTimer()
	for b.Loop() {
		d := NewDecoder()
		for i := 0; i < len(framed); i += chunkSize {
			end := i + chunkSize
			if end > len(framed) {
				end = len(framed)
			}
			d.Feed(framed[i:end])
			if _, err := d.Decode(); err != nil {
				b.Fatalf("unexpected error: %v", err)
			}
		}
	}
}
