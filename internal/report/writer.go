package report

import (
	"encoding/json"
	"io"
)

// Writer renders a session to a configured destination.
//
// Design decision: We use an interface so the command layer can select the
// format from flags and treat file and stdout destinations uniformly.
type Writer interface {
	// Write renders the session. It returns the number of bytes written
	// and any error encountered.
	Write(session *Session) (int, error)
}

// baseWriter provides the common output destination for writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// JSONWriter renders the session as indented JSON for machine consumption.
type JSONWriter struct {
	baseWriter
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer) *JSONWriter {
	return &JSONWriter{baseWriter: newBaseWriter(output)}
}

// Write renders the session as JSON.
func (w *JSONWriter) Write(session *Session) (int, error) {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
