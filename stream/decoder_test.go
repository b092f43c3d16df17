package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader returns one chunk per Read call, the way a network body trickles in.
type chunkedReader struct {
	chunks []string
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, r io.Reader, framing Framing) ([]Frame, error) {
	t.Helper()
	var frames []Frame
	err := Decode(context.Background(), r, framing, func(f Frame) {
		frames = append(frames, f)
	})
	return frames, err
}

func texts(frames []Frame, kind Kind) string {
	var b strings.Builder
	for _, f := range frames {
		if f.Kind == kind {
			b.WriteString(f.Text)
		}
	}
	return b.String()
}

func TestDecodeSSE(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n"

	frames, err := collect(t, strings.NewReader(body), FramingSSE)
	require.NoError(t, err)
	assert.Equal(t, "Hello", texts(frames, KindText))
	assert.Equal(t, KindDone, frames[len(frames)-1].Kind)
}

func TestDecodeSSESplitAcrossReads(t *testing.T) {
	r := &chunkedReader{chunks: []string{
		"data: {\"choices\":[{\"del",
		"ta\":{\"content\":\"<files>\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"hmm\",\"content\":\"x\"}}]}",
		"\n",
	}}

	frames, err := collect(t, r, FramingSSE)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, Frame{Kind: KindText, Text: "<files>"}, frames[0])
	assert.Equal(t, Frame{Kind: KindReasoning, Text: "hmm"}, frames[1])
	assert.Equal(t, Frame{Kind: KindText, Text: "x"}, frames[2])
}

func TestDecodeSSEDropsMalformedRecord(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {not json\n" +
		": keep-alive comment\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n"

	dec := NewDecoder(strings.NewReader(body), FramingSSE)
	var got string
	for {
		f, err := dec.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += f.Text
	}
	assert.Equal(t, "ab", got)
	assert.Equal(t, 1, dec.Dropped())
}

func TestDecodeSSEProviderError(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {\"error\":{\"message\":\"rate limited\"}}\n"

	frames, err := collect(t, strings.NewReader(body), FramingSSE)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "rate limited", remote.Message)
	assert.Equal(t, "a", texts(frames, KindText))
}

func TestDecodePrefixed(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantText      string
		wantReasoning string
		wantErr       string
	}{
		{
			name:     "text deltas",
			body:     "0:\"Hello\"\n0:\" world\"\n",
			wantText: "Hello world",
		},
		{
			name:          "reasoning string and object",
			body:          "r:\"think \"\nr:{\"reasoning\":\"more\"}\n0:\"ok\"\n",
			wantText:      "ok",
			wantReasoning: "think more",
		},
		{
			name:     "malformed record dropped",
			body:     "0:\"a\"\n0:{broken\n0:\"b\"\n",
			wantText: "ab",
		},
		{
			name:     "placeholder error ignored",
			body:     "0:\"a\"\ne:{\"error\":\"\"}\n0:\"b\"\n",
			wantText: "ab",
		},
		{
			name:     "error terminates",
			body:     "0:\"a\"\ne:{\"error\":\"model overloaded\"}\n0:\"never\"\n",
			wantText: "a",
			wantErr:  "model overloaded",
		},
		{
			name:     "finish record ends stream",
			body:     "0:\"a\"\nd:{\"finishReason\":\"stop\"}\n0:\"late\"\n",
			wantText: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := collect(t, strings.NewReader(tt.body), FramingPrefixed)
			if tt.wantErr != "" {
				var remote *RemoteError
				require.ErrorAs(t, err, &remote)
				assert.Equal(t, tt.wantErr, remote.Message)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantText, texts(frames, KindText))
			assert.Equal(t, tt.wantReasoning, texts(frames, KindReasoning))
		})
	}
}

func TestDecodeStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &chunkedReader{chunks: []string{"0:\"a\"\n", "0:\"b\"\n"}}
	dec := NewDecoder(r, FramingPrefixed)

	f, err := dec.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", f.Text)

	cancel()
	_, err = dec.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = dec.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestWritePrefixedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePrefixed(&buf, Frame{Kind: KindReasoning, Text: "plan"}))
	require.NoError(t, WritePrefixed(&buf, Frame{Kind: KindText, Text: "line\nbreak \"quoted\""}))
	require.NoError(t, WritePrefixed(&buf, Frame{Kind: KindDone}))

	frames, err := collect(t, &buf, FramingPrefixed)
	require.NoError(t, err)
	assert.Equal(t, "plan", texts(frames, KindReasoning))
	assert.Equal(t, "line\nbreak \"quoted\"", texts(frames, KindText))
}

func TestWritePrefixedError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePrefixed(&buf, Frame{Kind: KindError, Err: errors.New("boom")}))
	assert.Equal(t, "e:{\"error\":\"boom\"}\n", buf.String())
}
