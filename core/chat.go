package core

import (
	"context"
	"errors"
	"io"
	"strings"

	"showcase/artifact"
	"showcase/stream"
)

// FlushWriter is a response writer that can push buffered bytes to the client.
type FlushWriter interface {
	io.Writer
	Flush()
}

// deltaTracker turns successive parses of a growing text into appended deltas.
// A parse that is not an extension of what was already sent (a partially
// streamed tag that turned out to be text) is held back until it is.
type deltaTracker struct {
	text      string
	reasoning string
}

func nextDelta(sent *string, current string) string {
	if len(current) <= len(*sent) || !strings.HasPrefix(current, *sent) {
		return ""
	}
	delta := current[len(*sent):]
	*sent = current
	return delta
}

func (d *deltaTracker) next(a artifact.Artifact) (text, reasoning string) {
	return nextDelta(&d.text, a.DisplayContent), nextDelta(&d.reasoning, a.Reasoning)
}

// ChatReply is what a relayed chat stream produced.
type ChatReply struct {
	Content   string
	Reasoning string
}

// RelayChat streams a chatbot answer from backend to w as prefixed records,
// splitting <think> spans out of the text into reasoning records. The caller
// writes the terminating error or finish record.
func RelayChat(ctx context.Context, backend ModelBackend, messages []PromptMessage, w FlushWriter) (ChatReply, error) {
	body, framing, err := backend.Stream(ctx, messages)
	if err != nil {
		return ChatReply{}, err
	}
	defer body.Close()

	var (
		text      strings.Builder
		streamed  strings.Builder
		tracker   deltaTracker
		writeErr  error
		dec       = stream.NewDecoder(body, framing)
		emitDelta = func(kind stream.Kind, delta string) {
			if delta == "" || writeErr != nil {
				return
			}
			writeErr = stream.WritePrefixed(w, stream.Frame{Kind: kind, Text: delta})
			w.Flush()
		}
	)
	defer func() { framesDropped.Add(float64(dec.Dropped())) }()

	for {
		f, err := dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ChatReply{}, err
		}
		framesDecoded.WithLabelValues(f.Kind.String()).Inc()

		switch f.Kind {
		case stream.KindReasoning:
			streamed.WriteString(f.Text)
			emitDelta(stream.KindReasoning, f.Text)
		case stream.KindText:
			text.WriteString(f.Text)
			dText, dReasoning := tracker.next(artifact.Parse(text.String()))
			emitDelta(stream.KindReasoning, dReasoning)
			emitDelta(stream.KindText, dText)
		}
		if writeErr != nil {
			return ChatReply{}, writeErr
		}
	}

	final := artifact.ParseFinal(text.String())
	dText, dReasoning := tracker.next(final)
	emitDelta(stream.KindReasoning, dReasoning)
	emitDelta(stream.KindText, dText)
	if writeErr != nil {
		return ChatReply{}, writeErr
	}

	reasoning := strings.TrimSpace(streamed.String())
	if final.Reasoning != "" {
		reasoning = strings.TrimSpace(reasoning + "\n\n" + final.Reasoning)
	}
	return ChatReply{Content: final.DisplayContent, Reasoning: reasoning}, nil
}
