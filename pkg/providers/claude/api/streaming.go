package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type StreamingEventType string

const (
	PingType              StreamingEventType = "ping"
	MessageStartType      StreamingEventType = "message_start"
	ContentBlockStartType StreamingEventType = "content_block_start"
	ContentBlockDeltaType StreamingEventType = "content_block_delta"
	ContentBlockStopType  StreamingEventType = "content_block_stop"
	MessageDeltaType      StreamingEventType = "message_delta"
	MessageStopType       StreamingEventType = "message_stop"
	ErrorType             StreamingEventType = "error"
)

type StreamingDeltaType string

const (
	TextDeltaType      StreamingDeltaType = "text_delta"
	ThinkingDeltaType  StreamingDeltaType = "thinking_delta"
	SignatureDeltaType StreamingDeltaType = "signature_delta"
	InputJSONDeltaType StreamingDeltaType = "input_json_delta"
)

type StreamingEvent struct {
	Type         StreamingEventType `json:"type"`
	Message      *MessageResponse   `json:"message,omitempty"`
	Delta        *Delta             `json:"delta,omitempty"`
	Error        *Error             `json:"error,omitempty"`
	Index        int                `json:"index,omitempty"`
	Usage        *Usage             `json:"usage,omitempty"`
	ContentBlock *ContentBlock      `json:"content_block,omitempty"`
}

// MarshalZerologObject logs the event kind and its delta without the
// accumulated message body.
func (s StreamingEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(s.Type)).Int("index", s.Index)
	switch {
	case s.Delta != nil:
		e.Str("delta_type", string(s.Delta.Type))
		if s.Delta.StopReason != "" {
			e.Str("stop_reason", s.Delta.StopReason)
		}
	case s.ContentBlock != nil:
		e.Object("content_block", s.ContentBlock)
	case s.Message != nil:
		e.Object("message", s.Message)
	case s.Error != nil:
		e.Str("error_type", s.Error.Type).Str("error", s.Error.Message)
	}
}

var _ zerolog.LogObjectMarshaler = StreamingEvent{}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Delta struct {
	Type         StreamingDeltaType `json:"type"`
	Text         string             `json:"text,omitempty"`
	Thinking     string             `json:"thinking,omitempty"`
	Signature    string             `json:"signature,omitempty"`
	PartialJSON  string             `json:"partial_json,omitempty"`
	StopReason   string             `json:"stop_reason,omitempty"`
	StopSequence string             `json:"stop_sequence,omitempty"`
}

// eventReader splits a text/event-stream body into decoded events.
type eventReader struct {
	scanner *bufio.Scanner
	data    strings.Builder
	count   int
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &eventReader{scanner: scanner}
}

const maxEventSize = 4 << 20

// Next returns the next event carrying a data payload, or io.EOF.
func (er *eventReader) Next() (StreamingEvent, error) {
	for er.scanner.Scan() {
		line := strings.TrimRight(er.scanner.Text(), "\r")
		if line == "" {
			if er.data.Len() == 0 {
				continue
			}
			ev, err := er.decode()
			if err != nil {
				log.Debug().Err(err).Msg("skipping undecodable stream event")
				continue
			}
			return ev, nil
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		if er.data.Len() > 0 {
			er.data.WriteByte('\n')
		}
		er.data.WriteString(strings.TrimPrefix(value, " "))
	}
	if err := er.scanner.Err(); err != nil {
		return StreamingEvent{}, err
	}
	if er.data.Len() > 0 {
		if ev, err := er.decode(); err == nil {
			return ev, nil
		}
	}
	return StreamingEvent{}, io.EOF
}

func (er *eventReader) decode() (StreamingEvent, error) {
	defer er.data.Reset()
	var ev StreamingEvent
	if err := json.Unmarshal([]byte(er.data.String()), &ev); err != nil {
		return ev, err
	}
	er.count++
	log.Trace().Int("event_number", er.count).Object("event", ev).Msg("claude stream event")
	return ev, nil
}

func streamEvents(ctx context.Context, body io.ReadCloser, events chan<- StreamingEvent) {
	defer func() {
		_ = body.Close()
	}()

	reader := newEventReader(body)
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("claude stream read failed")
			ev = StreamingEvent{Type: ErrorType, Error: &Error{Type: "stream_error", Message: err.Error()}}
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}
