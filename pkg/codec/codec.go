// Package codec implements the length-delimited JSON-RPC framing used on
// both sides of the interceptor: LSP-style "Content-Length: N\r\n\r\n<N
// bytes>" headers, with "\n\n" also accepted as a header terminator on
// input. The decoder is a small two-state machine (Head, Body) that must
// never panic regardless of input and must be idempotent across arbitrary
// chunking of the same byte stream.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxMessageSize is the upper bound on a single message body, in bytes.
const MaxMessageSize = 10 * 1024 * 1024 // 10 MiB

// MaxHeaderSize is the upper bound on the header block before a terminator
// is found. Exceeding it without finding "\r\n\r\n" or "\n\n" is a protocol
// error — it guards against an attacker streaming headers forever.
const MaxHeaderSize = 4 * 1024 // 4 KiB

// FailureKind classifies a decode failure.
type FailureKind int

const (
	// ProtocolError marks a malformed or missing Content-Length header.
	ProtocolError FailureKind = iota
	// MessageTooLarge marks a Content-Length exceeding MaxMessageSize.
	MessageTooLarge
	// HeaderTooLarge marks a header block exceeding MaxHeaderSize without a terminator.
	HeaderTooLarge
	// ParseError marks a body that failed to parse as JSON.
	ParseError
)

// String renders the failure kind for logging.
func (k FailureKind) String() string {
	switch k {
	case ProtocolError:
		return "protocol_error"
	case MessageTooLarge:
		return "message_too_large"
	case HeaderTooLarge:
		return "header_too_large"
	case ParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// DecodeError is returned by Decoder.Decode on any framing or parse failure.
type DecodeError struct {
	Kind FailureKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("codec: %s", e.Kind)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func fail(kind FailureKind, err error) *DecodeError {
	return &DecodeError{Kind: kind, Err: err}
}

type decodeState int

const (
	stateHead decodeState = iota
	stateBody
)

// Decoder is a stateful, streaming frame decoder. It is not safe for
// concurrent use — each connection direction owns its own Decoder.
type Decoder struct {
	buf      bytes.Buffer
	state    decodeState
	bodyLen  int
}

// NewDecoder returns a fresh decoder positioned at the start of a header block.
func NewDecoder() *Decoder {
	return &Decoder{state: stateHead}
}

// Feed appends newly-read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf.Write(p)
}

// headerTerminators are the two accepted end-of-headers markers, longest first
// so a scan for either one chooses prefers a match that starts earliest.
var headerTerminators = [][]byte{
	[]byte("\r\n\r\n"),
	[]byte("\n\n"),
}

// findTerminator returns the offset just past the terminator, and its
// length, or (-1, 0) if no terminator is present yet.
func findTerminator(b []byte) (end int, termLen int) {
	best := -1
	bestLen := 0
	for _, term := range headerTerminators {
		if idx := bytes.Index(b, term); idx != -1 {
			if best == -1 || idx < best {
				best = idx
				bestLen = len(term)
			}
		}
	}
	if best == -1 {
		return -1, 0
	}
	return best + bestLen, bestLen
}

// Decode attempts to produce the next complete message from whatever bytes
// have been fed so far. It returns (nil, nil) when more bytes are needed
// ("None" in spec terms), (msg, nil) when a message was decoded, and
// (nil, err) on failure; the offending bytes are dropped from the internal
// buffer rather than returned.
//
// Decode never panics: every branch that touches buffered bytes bounds its
// reads against what is actually present.
func (d *Decoder) Decode() (msg json.RawMessage, err error) {
	for {
		switch d.state {
		case stateHead:
			raw := d.buf.Bytes()
			// Bound the scan to MaxHeaderSize bytes so the guard below fires
			// independent of whether a terminator happens to be present past
			// that point — otherwise a single large Feed() could smuggle a
			// >MaxHeaderSize header past the size check purely because its
			// terminator already arrived, while the same bytes fed in
			// smaller increments would trip the guard mid-stream. Decode
			// must produce the same result for the same total bytes
			// regardless of chunking.
			scanLimit := raw
			truncated := false
			if len(scanLimit) > MaxHeaderSize {
				scanLimit = scanLimit[:MaxHeaderSize]
				truncated = true
			}
			end, _ := findTerminator(scanLimit)
			if end == -1 {
				if truncated || d.buf.Len() > MaxHeaderSize {
					d.buf.Reset()
					d.state = stateHead
					return nil, fail(HeaderTooLarge, nil)
				}
				return nil, nil
			}

			header := make([]byte, end)
			copy(header, raw[:end])
			d.buf.Next(end)

			length, perr := parseContentLength(header)
			if perr != nil {
				d.state = stateHead
				return nil, fail(ProtocolError, perr)
			}
			if length < 0 {
				d.state = stateHead
				return nil, fail(ProtocolError, fmt.Errorf("negative content-length %d", length))
			}
			if length > MaxMessageSize {
				d.state = stateHead
				return nil, fail(MessageTooLarge, fmt.Errorf("content-length %d exceeds max %d", length, MaxMessageSize))
			}

			d.bodyLen = length
			d.state = stateBody

		case stateBody:
			if d.buf.Len() < d.bodyLen {
				return nil, nil
			}
			body := make([]byte, d.bodyLen)
			copy(body, d.buf.Bytes()[:d.bodyLen])
			d.buf.Next(d.bodyLen)
			d.state = stateHead
			d.bodyLen = 0

			var probe interface{}
			if jsonErr := json.Unmarshal(body, &probe); jsonErr != nil {
				return nil, fail(ParseError, jsonErr)
			}
			return json.RawMessage(body), nil
		}
	}
}

// parseContentLength scans a header block (its terminator included; blank
// lines are skipped) for a case-insensitive "Content-Length" header and
// returns its value.
func parseContentLength(header []byte) (int, error) {
	lines := strings.Split(string(header), "\n")
	found := false
	length := 0
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(parts[0]), "content-length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, fmt.Errorf("non-numeric content-length: %w", err)
		}
		length = n
		found = true
	}
	if !found {
		return 0, fmt.Errorf("missing content-length header")
	}
	return length, nil
}

// Encode frames a message body as "Content-Length: N\r\n\r\n<body>".
// Output always uses the strict \r\n\r\n terminator, regardless of which
// terminator form was accepted on input.
func Encode(body []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out
}

// EncodeValue marshals v to JSON and frames it.
func EncodeValue(v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	return Encode(body), nil
}
