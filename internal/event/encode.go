package event

import (
	"encoding/json"
	"fmt"
)

// Encode serialises an event as a single JSON object carrying the "event"
// tag alongside the event's own fields, followed by a newline.
func Encode(e Event) ([]byte, error) {
	fields, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Tag(), err)
	}

	tag, _ := json.Marshal(e.Tag())
	var out []byte
	if string(fields) == "{}" {
		out = fmt.Appendf(nil, `{"event":%s}`, tag)
	} else {
		// Splice the tag in front of the event's own fields.
		out = fmt.Appendf(nil, `{"event":%s,%s`, tag, fields[1:])
	}
	return append(out, '\n'), nil
}
