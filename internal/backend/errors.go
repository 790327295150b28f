package backend

import (
	"errors"
	"fmt"
)

// ErrNotOpen is returned by Stream.Send when the connection is not Open.
var ErrNotOpen = errors.New("stream is not open")

// DiscoveryError reports a failed device discovery request.
type DiscoveryError struct {
	Op  string // request, status or decode
	URL string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("device discovery %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// StreamErrorKind classifies a StreamError.
type StreamErrorKind int

const (
	// TransportError ends the connection.
	TransportError StreamErrorKind = iota
	// MalformedPayload affects a single message; the connection stays open.
	MalformedPayload
)

func (k StreamErrorKind) String() string {
	switch k {
	case TransportError:
		return "transport"
	case MalformedPayload:
		return "malformed_payload"
	default:
		return fmt.Sprintf("StreamErrorKind(%d)", int(k))
	}
}

// StreamError is raised by a Stream through EventError.
type StreamError struct {
	Kind StreamErrorKind
	Err  error
}

func newStreamError(kind StreamErrorKind, err error) *StreamError {
	return &StreamError{Kind: kind, Err: err}
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Kind, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is a MalformedPayload StreamError.
func IsMalformed(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Kind == MalformedPayload
}
