package logger

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

const defaultBufferSize = 1000

// MessageLogEntry is the WebSocket message type for streamed log entries.
const MessageLogEntry = "logs:entry"

// Broadcaster is the interface for broadcasting messages.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// LogEntry is one parsed zerolog line.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Filter selects buffered entries. Zero values match everything.
type Filter struct {
	MinLevel  string
	Component string
	Limit     int
}

func (f Filter) matches(e LogEntry) bool {
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.MinLevel != "" && ParseLevel(e.Level) < ParseLevel(f.MinLevel) {
		return false
	}
	return true
}

// LogBroadcaster is an io.Writer for zerolog JSON output. It keeps the most
// recent entries and forwards each one to the hub, if set.
type LogBroadcaster struct {
	buffer *RingBuffer[LogEntry]

	mu  sync.RWMutex
	hub Broadcaster
}

// NewLogBroadcaster creates a log broadcaster. hub may be nil and set later.
func NewLogBroadcaster(hub Broadcaster, bufferSize int) *LogBroadcaster {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &LogBroadcaster{
		hub:    hub,
		buffer: NewRingBuffer[LogEntry](bufferSize),
	}
}

// SetHub sets the hub entries are forwarded to.
func (b *LogBroadcaster) SetHub(hub Broadcaster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hub = hub
}

// Write implements io.Writer. Lines that are not JSON objects are dropped.
func (b *LogBroadcaster) Write(p []byte) (int, error) {
	entry, ok := parseEntry(p)
	if !ok {
		return len(p), nil
	}

	b.buffer.Push(entry)

	b.mu.RLock()
	hub := b.hub
	b.mu.RUnlock()

	if hub != nil {
		_ = hub.Broadcast(MessageLogEntry, entry)
	}
	return len(p), nil
}

// GetRecentLogs returns all buffered entries, oldest first.
func (b *LogBroadcaster) GetRecentLogs() []LogEntry {
	return b.buffer.GetAll()
}

// Query returns buffered entries matching f, oldest first. Limit keeps the
// newest matches.
func (b *LogBroadcaster) Query(f Filter) []LogEntry {
	all := b.buffer.GetAll()
	out := make([]LogEntry, 0, len(all))
	for _, e := range all {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func parseEntry(data []byte) (LogEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, false
	}

	var entry LogEntry
	entry.Timestamp = take(raw, zerolog.TimestampFieldName)
	entry.Level = take(raw, zerolog.LevelFieldName)
	entry.Message = take(raw, zerolog.MessageFieldName)
	entry.Component = take(raw, "component")
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, true
}

func take(raw map[string]any, key string) string {
	v, ok := raw[key].(string)
	if ok {
		delete(raw, key)
	}
	return v
}
