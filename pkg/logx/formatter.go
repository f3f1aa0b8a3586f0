package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Format selects the output rendering.
type Format string

const (
	// FormatConsole renders human-readable lines (default)
	FormatConsole Format = "console"
	// FormatJSON renders one JSON object per line
	FormatJSON Format = "json"
)

type jsonFormatter struct{}

func (f *jsonFormatter) Format(r *Record) ([]byte, error) {
	data := make(map[string]any, len(r.Fields)+4)
	data["level"] = r.Level.String()
	data["message"] = r.Message
	data["timestamp"] = r.Timestamp.Format(time.RFC3339Nano)

	for k, v := range r.Fields {
		data[k] = v
	}
	if r.Error != nil {
		data["error"] = r.Error.Error()
	}

	line, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

type consoleFormatter struct{}

func (f *consoleFormatter) Format(r *Record) ([]byte, error) {
	var b strings.Builder

	b.WriteString(r.Timestamp.Format("2006-01-02 15:04:05"))
	b.WriteString(fmt.Sprintf(" %-5s ", r.Level.String()))
	b.WriteString(r.Message)

	if len(r.Fields) > 0 {
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%v", k, r.Fields[k]))
		}
	}
	b.WriteByte('\n')

	return []byte(b.String()), nil
}
