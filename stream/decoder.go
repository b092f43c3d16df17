/*
Package stream decodes the newline-framed model streams consumed by the showcase service.

Two framings are supported:
  - FramingSSE: provider framing, one `data: <json>` record per line where the JSON is an
    OpenAI-style chat completion chunk, terminated by `data: [DONE]` or stream close.
  - FramingPrefixed: chatbot framing, `0:` (text delta), `r:` (reasoning), `e:` (error)
    and `d:` (finish) records carrying JSON payloads.

Decoding is incremental. A record split across two reads is buffered until its newline
arrives, a record with malformed JSON is dropped without aborting the stream, and the
caller's context is checked before every read.
*/
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Kind identifies the variant carried by a Frame.
type Kind int

const (
	KindText Kind = iota
	KindReasoning
	KindError
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindReasoning:
		return "reasoning"
	case KindError:
		return "error"
	case KindDone:
		return "done"
	}
	return "unknown"
}

// Framing selects the wire format a Decoder understands.
type Framing int

const (
	FramingSSE Framing = iota
	FramingPrefixed
)

// Frame is one decoded record of the wire protocol.
type Frame struct {
	Kind Kind
	Text string
	Err  error
}

// RemoteError is an error reported in-band by the producer of the stream.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "stream error: " + e.Message
}

const readChunkSize = 4096

// placeholder error payloads that some producers emit without meaning a failure
var placeholderErrors = map[string]bool{
	"":          true,
	"undefined": true,
	"null":      true,
}

// Decoder turns a byte stream into ordered frames.
type Decoder struct {
	r       io.Reader
	framing Framing

	buf     []byte
	pending []Frame
	eof     bool
	done    bool

	dropped int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader, framing Framing) *Decoder {
	return &Decoder{r: r, framing: framing}
}

// Dropped reports how many records were discarded as malformed.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Next returns the next frame. It returns io.EOF once the stream is exhausted or a
// terminator was seen, ctx.Err() when the context is cancelled, and a *RemoteError
// when the producer reported a failure.
func (d *Decoder) Next(ctx context.Context) (Frame, error) {
	for {
		if d.done && len(d.pending) == 0 {
			return Frame{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			d.finish()
			return Frame{}, err
		}
		if len(d.pending) > 0 {
			f := d.pending[0]
			d.pending = d.pending[1:]
			if f.Kind == KindError {
				d.finish()
				return Frame{}, f.Err
			}
			if f.Kind == KindDone {
				d.finish()
			}
			return f, nil
		}
		if d.done {
			return Frame{}, io.EOF
		}
		if d.eof {
			// a final record without a trailing newline is still a record
			if len(d.buf) > 0 {
				line := d.buf
				d.buf = nil
				d.decodeLine(line)
				continue
			}
			d.done = true
			continue
		}

		chunk := make([]byte, readChunkSize)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
			d.splitLines()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				d.finish()
				return Frame{}, ctxErr
			}
			d.finish()
			return Frame{}, fmt.Errorf("read stream: %w", err)
		}
	}
}

// finish discards all partial state; later calls return io.EOF.
func (d *Decoder) finish() {
	d.done = true
	d.buf = nil
	d.pending = nil
}

func (d *Decoder) splitLines() {
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		d.decodeLine(line)
	}
}

func (d *Decoder) decodeLine(raw []byte) {
	line := strings.TrimRight(string(raw), "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	switch d.framing {
	case FramingPrefixed:
		d.decodePrefixed(line)
	default:
		d.decodeSSE(line)
	}
}

// providerError is the error envelope OpenAI-compatible servers send in a data record.
type providerError struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (d *Decoder) decodeSSE(line string) {
	if !strings.HasPrefix(line, "data:") {
		// event:, id:, retry: and comment lines carry nothing we use
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return
	}
	if payload == "[DONE]" {
		d.pending = append(d.pending, Frame{Kind: KindDone})
		return
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		d.dropped++
		return
	}
	if len(chunk.Choices) == 0 {
		var pe providerError
		if err := json.Unmarshal([]byte(payload), &pe); err == nil && pe.Error != nil && !placeholderErrors[pe.Error.Message] {
			d.pending = append(d.pending, Frame{Kind: KindError, Err: &RemoteError{Message: pe.Error.Message}})
		}
		return
	}

	delta := chunk.Choices[0].Delta
	if delta.ReasoningContent != "" {
		d.pending = append(d.pending, Frame{Kind: KindReasoning, Text: delta.ReasoningContent})
	}
	if delta.Content != "" {
		d.pending = append(d.pending, Frame{Kind: KindText, Text: delta.Content})
	}
}

func (d *Decoder) decodePrefixed(line string) {
	prefix, payload, ok := strings.Cut(line, ":")
	if !ok {
		d.dropped++
		return
	}
	data := []byte(strings.TrimSpace(payload))

	switch prefix {
	case "0":
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			d.dropped++
			return
		}
		d.pending = append(d.pending, Frame{Kind: KindText, Text: text})
	case "r":
		text, ok := decodeReasoning(data)
		if !ok {
			d.dropped++
			return
		}
		d.pending = append(d.pending, Frame{Kind: KindReasoning, Text: text})
	case "e":
		var body struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			d.dropped++
			return
		}
		if placeholderErrors[strings.TrimSpace(body.Error)] {
			return
		}
		d.pending = append(d.pending, Frame{Kind: KindError, Err: &RemoteError{Message: body.Error}})
	case "d":
		d.pending = append(d.pending, Frame{Kind: KindDone})
	default:
		d.dropped++
	}
}

// decodeReasoning accepts either a bare JSON string or an object with a
// reasoning/text field.
func decodeReasoning(data []byte) (string, bool) {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text, true
	}
	var obj struct {
		Reasoning string `json:"reasoning"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false
	}
	if obj.Reasoning != "" {
		return obj.Reasoning, true
	}
	return obj.Text, true
}

// Decode reads every frame from r and hands it to fn in arrival order.
// It returns nil when the stream ends normally.
func Decode(ctx context.Context, r io.Reader, framing Framing, fn func(Frame)) error {
	dec := NewDecoder(r, framing)
	for {
		f, err := dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(f)
	}
}
