package stream

import (
	"encoding/json"
	"fmt"
	"io"
)

// WritePrefixed writes f as a single prefixed record understood by a
// FramingPrefixed decoder.
func WritePrefixed(w io.Writer, f Frame) error {
	var (
		prefix  string
		payload any
	)
	switch f.Kind {
	case KindText:
		prefix, payload = "0", f.Text
	case KindReasoning:
		prefix, payload = "r", f.Text
	case KindError:
		msg := f.Text
		if f.Err != nil {
			msg = f.Err.Error()
		}
		prefix, payload = "e", map[string]string{"error": msg}
	case KindDone:
		prefix, payload = "d", map[string]string{"finishReason": "stop"}
	default:
		return fmt.Errorf("unsupported frame kind %s", f.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", f.Kind, err)
	}
	_, err = fmt.Fprintf(w, "%s:%s\n", prefix, data)
	return err
}
