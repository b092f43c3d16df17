package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanAgentResponse(t *testing.T) {
	w := NewCleaningLLMWrapper(nil, DefaultConfig(), quietLogger())

	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "keeps react output",
			response: "Thought: list the files\nAction: ls\nAction Input: /",
			want:     "Thought: list the files\nAction: ls\nAction Input: /",
		},
		{
			name:     "strips reasoning",
			response: "<think>hmm</think>\nThought: done\nFinal Answer: two files",
			want:     "Thought: done\nFinal Answer: two files",
		},
		{
			name:     "drops an unterminated think block",
			response: "Final Answer: yes <think>still going",
			want:     "Final Answer: yes",
		},
		{
			name:     "fills an empty action input",
			response: "Thought: check the date\nAction: datetime\nAction Input:",
			want:     "Thought: check the date\nAction: datetime\nAction Input: ",
		},
		{
			name:     "wraps a bare answer",
			response: "The entry file is /App.tsx.",
			want:     "Thought: I can answer from what I already know about the project.\nFinal Answer: The entry file is /App.tsx.",
		},
		{
			name:     "removes generated components",
			response: "Final Answer: like this <component>export default function A() {}</component>",
			want:     "Final Answer: like this",
		},
		{
			name:     "empty response",
			response: "<think>only thoughts</think>",
			want:     "Final Answer: I could not produce an answer about this project. Please rephrase the question.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.CleanAgentResponse(tt.response))
		})
	}
}

func TestCleaningWrapperCleansChoices(t *testing.T) {
	w := NewCleaningLLMWrapper(&fakeModel{chunks: []string{"<think>x</think>", "It uses three files."}}, DefaultConfig(), quietLogger())

	out, err := w.Call(context.Background(), "how many files?")
	require.NoError(t, err)
	assert.Equal(t, "Thought: I can answer from what I already know about the project.\nFinal Answer: It uses three files.", out)
}

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "short", truncateForLog("short", 10))
	assert.Equal(t, "abc...", truncateForLog("abcdef", 3))
	assert.Equal(t, "abcdef", truncateForLog("abcdef", 0))
}
