package singer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// timeExtractedFormat matches the Singer convention for time_extracted.
// The trailing Z is literal: values are always UTC.
const timeExtractedFormat = "2006-01-02T15:04:05.000000Z"

// Sink receives typed records and state blobs from the sync loop.
// Implementations must preserve write ordering.
type Sink interface {
	// WriteSchema declares the schema for a stream before any of its records.
	WriteSchema(ctx context.Context, stream string, schema any, keyProperties []string) error

	// WriteRecord appends one record to a stream. timeExtracted marks when the
	// value was retrieved from the source, distinct from the record's own
	// timestamps.
	WriteRecord(ctx context.Context, stream string, record map[string]any, timeExtracted time.Time) error

	// WriteState persists the full current state.
	WriteState(ctx context.Context, state *State) error
}

type schemaMessage struct {
	Type          string   `json:"type"`
	Stream        string   `json:"stream"`
	Schema        any      `json:"schema"`
	KeyProperties []string `json:"key_properties"`
}

type recordMessage struct {
	Type          string         `json:"type"`
	Stream        string         `json:"stream"`
	Record        map[string]any `json:"record"`
	TimeExtracted string         `json:"time_extracted"`
}

type stateMessage struct {
	Type  string `json:"type"`
	Value *State `json:"value"`
}

// MessageWriter is the default Sink: it frames every write as one JSON
// message per line, the Singer wire format consumed from stdout by a target.
type MessageWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewMessageWriter creates a message writer on top of an io.Writer.
func NewMessageWriter(w io.Writer) *MessageWriter {
	return &MessageWriter{w: w}
}

// WriteSchema emits a SCHEMA message.
func (mw *MessageWriter) WriteSchema(_ context.Context, stream string, schema any, keyProperties []string) error {
	return mw.write(schemaMessage{
		Type:          "SCHEMA",
		Stream:        stream,
		Schema:        schema,
		KeyProperties: keyProperties,
	})
}

// WriteRecord emits a RECORD message.
func (mw *MessageWriter) WriteRecord(_ context.Context, stream string, record map[string]any, timeExtracted time.Time) error {
	return mw.write(recordMessage{
		Type:          "RECORD",
		Stream:        stream,
		Record:        record,
		TimeExtracted: timeExtracted.UTC().Format(timeExtractedFormat),
	})
}

// WriteState emits a STATE message with the full state value.
func (mw *MessageWriter) WriteState(_ context.Context, state *State) error {
	return mw.write(stateMessage{
		Type:  "STATE",
		Value: state,
	})
}

func (mw *MessageWriter) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	mw.mu.Lock()
	defer mw.mu.Unlock()
	if _, err := fmt.Fprintln(mw.w, string(data)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
