// Package sse implements the answer streaming protocol: server-sent events
// framed by [START] and [END] sentinels with JSON chunk payloads in between.
//
//	data: [START]
//
//	data: {"chunk":"The library "}
//
//	data: {"chunk":"opens at 8am."}
//
//	data: [END]
//
// A stream-level failure is sent as an "error" event and ends the stream:
//
//	event: error
//	data: {"error":"generation failed"}
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	StartSentinel = "[START]"
	EndSentinel   = "[END]"

	errorEventName = "error"
)

var (
	ErrMalformedFrame = errors.New("malformed stream frame")
	// ErrUnexpectedEOF is reported when the connection ends before [END].
	ErrUnexpectedEOF = errors.New("stream ended before end sentinel")
)

type EventKind int

const (
	EventStart EventKind = iota + 1
	EventChunk
	EventEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventChunk:
		return "chunk"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one decoded frame. Text is set for EventChunk, Err for EventError.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

type chunkPayload struct {
	Chunk string `json:"chunk"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// RemoteError carries the message of an error frame sent by the server.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "stream error: " + e.Message }

// decodeFrame turns an accumulated SSE event into a protocol Event.
func decodeFrame(name string, data string) Event {
	if name == errorEventName {
		var p errorPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil || p.Error == "" {
			return Event{Kind: EventError, Err: &RemoteError{Message: strings.TrimSpace(data)}}
		}
		return Event{Kind: EventError, Err: &RemoteError{Message: p.Error}}
	}

	switch strings.TrimSpace(data) {
	case StartSentinel:
		return Event{Kind: EventStart}
	case EndSentinel:
		return Event{Kind: EventEnd}
	}

	var p chunkPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Event{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}
	return Event{Kind: EventChunk, Text: p.Chunk}
}
