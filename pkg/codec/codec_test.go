package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeSingleMessage(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","method":"ping"}`)
	framed := Encode(body)

	d := NewDecoder()
	d.Feed(framed)

	msg, err := d.Decode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(msg, body) {
		t.Fatalf("got %s want %s", msg, body)
	}

	// No more messages buffered.
	msg, err = d.Decode()
	if err != nil || msg != nil {
		t.Fatalf("expected (nil, nil) after single message, got (%s, %v)", msg, err)
	}
}

func TestDecodeAcceptsBothTerminators(t *testing.T) {
	body := []byte(`{"a":1}`)
	for _, term := range []string{"\r\n\r\n", "\n\n"} {
		raw := []byte("Content-Length: " + itoa(len(body)) + term)
		raw = append(raw, body...)

		d := NewDecoder()
		d.Feed(raw)
		msg, err := d.Decode()
		if err != nil {
			t.Fatalf("terminator %q: unexpected error %v", term, err)
		}
		if !bytes.Equal(msg, body) {
			t.Fatalf("terminator %q: got %s want %s", term, msg, body)
		}
	}
}

func TestDecodeChunking(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"x"}}`)
	framed := Encode(body)

	for chunkSize := 1; chunkSize <= len(framed); chunkSize++ {
		d := NewDecoder()
		var got json.RawMessage
		for i := 0; i < len(framed); i += chunkSize {
			end := i + chunkSize
			if end > len(framed) {
				end = len(framed)
			}
			d.Feed(framed[i:end])
			msg, err := d.Decode()
			if err != nil {
				t.Fatalf("chunk size %d: unexpected error %v", chunkSize, err)
			}
			if msg != nil {
				got = msg
			}
		}
		if !bytes.Equal(got, body) {
			t.Fatalf("chunk size %d: got %s want %s", chunkSize, got, body)
		}
	}
}

func TestDecodeMissingContentLength(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("X-Other: 1\r\n\r\n{}"))
	_, err := d.Decode()
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != ProtocolError {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestDecodeNonNumericContentLength(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("Content-Length: notanumber\r\n\r\n{}"))
	_, err := d.Decode()
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != ProtocolError {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestDecodeMessageTooLarge(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("Content-Length: 20000000\r\n\r\n"))
	_, err := d.Decode()
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != MessageTooLarge {
		t.Fatalf("expected MessageTooLarge, got %v", err)
	}
	// The decoder must not have allocated a 20MB buffer for this: state is reset.
	if d.state != stateHead || d.bodyLen != 0 {
		t.Fatalf("decoder did not reset after MessageTooLarge")
	}
}

func TestDecodeHeaderTooLarge(t *testing.T) {
	d := NewDecoder()
	junk := bytes.Repeat([]byte("a"), MaxHeaderSize+1)
	d.Feed(junk)
	_, err := d.Decode()
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != HeaderTooLarge {
		t.Fatalf("expected HeaderTooLarge, got %v", err)
	}
}

// TestDecodeHeaderTooLargeIndependentOfChunking fills the header block past
// MaxHeaderSize before the terminator appears, in both a single Feed() and
// many small ones, and requires the same HeaderTooLarge verdict either way —
// the terminator's mere presence past the bound must not smuggle an
// oversized header past the guard.
func TestDecodeHeaderTooLargeIndependentOfChunking(t *testing.T) {
	oversized := append(bytes.Repeat([]byte("X-Pad: "), MaxHeaderSize), []byte("\r\n\r\n")...)
	if len(oversized) <= MaxHeaderSize {
		t.Fatalf("test fixture too small: %d bytes", len(oversized))
	}

	t.Run("single feed", func(t *testing.T) {
		d := NewDecoder()
		d.Feed(oversized)
		_, err := d.Decode()
		var de *DecodeError
		if !errors.As(err, &de) || de.Kind != HeaderTooLarge {
			t.Fatalf("expected HeaderTooLarge, got %v", err)
		}
	})

	t.Run("small chunks", func(t *testing.T) {
		d := NewDecoder()
		var lastErr error
		for i := 0; i < len(oversized); i += 8 {
			end := i + 8
			if end > len(oversized) {
				end = len(oversized)
			}
			d.Feed(oversized[i:end])
			_, err := d.Decode()
			if err != nil {
				lastErr = err
				break
			}
		}
		var de *DecodeError
		if !errors.As(lastErr, &de) || de.Kind != HeaderTooLarge {
			t.Fatalf("expected HeaderTooLarge, got %v", lastErr)
		}
	})
}

func TestDecodeParseError(t *testing.T) {
	body := []byte(`{not valid json`)
	framed := Encode(body)
	d := NewDecoder()
	d.Feed(framed)
	_, err := d.Decode()
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != ParseError {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestDecodeNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		[]byte("\r\n\r\n"),
		[]byte("\n\n"),
		[]byte("Content-Length: -1\r\n\r\n"),
		[]byte("Content-Length: 0\r\n\r\n"),
		bytes.Repeat([]byte{0xff}, 1000),
		[]byte("Content-Length: 5\r\n\r\nabc"),
	}
	for i, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("input %d panicked: %v", i, r)
				}
			}()
			d := NewDecoder()
			d.Feed(in)
			for j := 0; j < 4; j++ {
				_, _ = d.Decode()
			}
		}()
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bodies := []string{
		`{"jsonrpc":"2.0","method":"initialize","id":1}`,
		`{"jsonrpc":"2.0","result":{},"id":1}`,
		`null`,
		`{}`,
	}
	for _, b := range bodies {
		framed := Encode([]byte(b))
		d := NewDecoder()
		d.Feed(framed)
		msg, err := d.Decode()
		if err != nil {
			t.Fatalf("round trip failed for %s: %v", b, err)
		}
		var want, got interface{}
		_ = json.Unmarshal([]byte(b), &want)
		_ = json.Unmarshal(msg, &got)
		wantJSON, _ := json.Marshal(want)
		gotJSON, _ := json.Marshal(got)
		if !bytes.Equal(wantJSON, gotJSON) {
			t.Fatalf("round trip mismatch: got %s want %s", gotJSON, wantJSON)
		}
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
