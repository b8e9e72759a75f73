package supervisor

import "time"

// DownstreamEventKind discriminates what the downstream framer task
// produced from the client's stdin.
type DownstreamEventKind int

const (
	DownstreamRequest DownstreamEventKind = iota
	DownstreamDisconnect
	DownstreamError
)

// DownstreamEvent is emitted by the reader task watching the client's
// stdin.
type DownstreamEvent struct {
	Kind      DownstreamEventKind
	Payload   []byte
	Err       error
	Timestamp time.Time
}

// UpstreamEventKind discriminates what came back from the child process.
type UpstreamEventKind int

const (
	UpstreamResponse UpstreamEventKind = iota
	UpstreamLog
	UpstreamTerminated
)

// UpstreamEvent is emitted by the reader tasks watching the child's
// stdout (framed responses) and stderr (line-oriented log drain).
type UpstreamEvent struct {
	Kind      UpstreamEventKind
	Payload   []byte
	Line      string
	Err       error
	Timestamp time.Time
}
