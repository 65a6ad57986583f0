package logger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
)

const defaultTimeFormat = time.Kitchen

// SSEPublisher is the part of sse.Server the writer needs.
type SSEPublisher interface {
	Publish(topic string, event *sse.Event)
}

// LogMessage is the shape published to the logs stream.
type LogMessage struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Bytes returns the JSON encoding of the message.
func (lm LogMessage) Bytes() ([]byte, error) {
	return json.Marshal(lm)
}

func defaultPartsOrder() []string {
	return []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.MessageFieldName,
	}
}

// SSEWriter is an io.Writer that decodes zerolog events and publishes them
// to an SSE stream so a UI can tail the engine's log live.
type SSEWriter struct {
	SSE        SSEPublisher
	TimeFormat string
	PartsOrder []string
}

// NewSSEWriter creates a writer publishing to the "logs" topic.
func NewSSEWriter(s SSEPublisher, options ...func(w *SSEWriter)) *SSEWriter {
	w := &SSEWriter{
		SSE:        s,
		TimeFormat: defaultTimeFormat,
		PartsOrder: defaultPartsOrder(),
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

func (w SSEWriter) Write(p []byte) (n int, err error) {
	var evt map[string]interface{}
	if err := json.Unmarshal(p, &evt); err != nil {
		return n, fmt.Errorf("cannot decode event: %s", err)
	}

	lm := LogMessage{
		Time:    w.formatTime(evt[zerolog.TimestampFieldName]),
		Level:   w.formatLevel(evt[zerolog.LevelFieldName]),
		Message: w.formatMessage(evt[zerolog.MessageFieldName]),
	}

	data, err := lm.Bytes()
	if err != nil {
		return n, err
	}

	w.SSE.Publish("logs", &sse.Event{
		Data: data,
	})

	return len(p), nil
}

func (w SSEWriter) formatTime(i interface{}) string {
	t, ok := i.(string)
	if !ok {
		return ""
	}

	parsed, err := time.Parse(time.RFC3339, t)
	if err != nil {
		return t
	}
	return parsed.Format(w.TimeFormat)
}

func (w SSEWriter) formatLevel(i interface{}) string {
	level, ok := i.(string)
	if !ok {
		return "???"
	}

	switch level {
	case zerolog.LevelTraceValue:
		return "TRC"
	case zerolog.LevelDebugValue:
		return "DBG"
	case zerolog.LevelInfoValue:
		return "INF"
	case zerolog.LevelWarnValue:
		return "WRN"
	case zerolog.LevelErrorValue:
		return "ERR"
	case zerolog.LevelFatalValue:
		return "FTL"
	case zerolog.LevelPanicValue:
		return "PNC"
	default:
		return strings.ToUpper(level)
	}
}

func (w SSEWriter) formatMessage(i interface{}) string {
	if i == nil {
		return ""
	}
	if msg, ok := i.(string); ok {
		return msg
	}
	return fmt.Sprintf("%v", i)
}
