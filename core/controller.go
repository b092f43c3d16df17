package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"showcase/artifact"
	"showcase/preview"
	"showcase/project"
	"showcase/stream"
)

// ErrNoArtifact is returned when the response held no files and no code even after the retry.
var ErrNoArtifact = errors.New("the model response contained no renderable component")

// Update types delivered to an UpdateSink.
const (
	UpdateArtifact = "artifact"
	UpdatePreview  = "preview"
	UpdateRetry    = "retry"
	UpdateError    = "error"
	UpdateStopped  = "stopped"
	UpdateDone     = "done"
)

// Update is one observable step of a generation turn.
type Update struct {
	Type      string
	MessageID string
	Artifact  *artifact.Artifact
	PreviewID string
	Version   int
	Error     string
}

// UpdateSink receives the updates of a turn in order, on the goroutine running it.
type UpdateSink func(Update)

// PreviewPublisher makes an assembled project visible to preview clients.
type PreviewPublisher interface {
	Publish(id string, p *project.Project) preview.Entry
}

// Result summarizes a finished turn.
type Result struct {
	TurnID    string
	MessageID string
	State     string
	Retries   int
	Artifact  artifact.Artifact
	Project   *project.Project
}

// Controller drives generation turns: it streams the model response, re-parses it
// on a debounce and keeps the transcript and the live preview in sync.
type Controller struct {
	backend  ModelBackend
	previews PreviewPublisher
	config   *Config
	logger   *logrus.Logger
	now      func() time.Time
}

// NewController creates a controller. previews may be nil for headless runs.
func NewController(backend ModelBackend, previews PreviewPublisher, config *Config, logger *logrus.Logger) *Controller {
	return &Controller{
		backend:  backend,
		previews: previews,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one turn for prompt on conv. It returns ErrTurnInFlight when conv
// is busy, the context error when the turn was aborted, ErrNoArtifact when the
// model never produced code, and the transport error otherwise.
func (c *Controller) Run(ctx context.Context, conv *Conversation, prompt string, sink UpdateSink) (*Result, error) {
	release, err := conv.Begin()
	if err != nil {
		return nil, err
	}
	defer release()

	if sink == nil {
		sink = func(Update) {}
	}

	startTime := time.Now()
	user := conv.Append(Message{Role: RoleUser, Content: prompt})
	assistant := conv.Append(Message{Role: RoleAssistant})

	turn := NewTurn(uuid.NewString(), assistant.ID, c.logger.WithField("conversationId", conv.ID))
	turnLogger := c.logger.WithFields(logrus.Fields{
		"conversationId": conv.ID,
		"turnId":         turn.ID,
		"messageId":      assistant.ID,
	})
	turnLogger.WithField("promptLength", len(prompt)).Info("Generation turn started")

	result := &Result{TurnID: turn.ID, MessageID: assistant.ID}
	defer func() {
		result.State = turn.State()
		result.Retries = turn.Retries()
		turnsTotal.WithLabelValues(result.State).Inc()
		turnDuration.Observe(time.Since(startTime).Seconds())
		turnLogger.WithFields(logrus.Fields{
			"state":         result.State,
			"retries":       result.Retries,
			"executionTime": time.Since(startTime),
		}).Info("Generation turn finished")
	}()

	if err := turn.Fire(EventStart); err != nil {
		return result, err
	}

	history := conv.History(user.ID, c.config.ContextLimit)
	strict := false
	for {
		messages, err := c.buildMessages(history, prompt, strict)
		if err != nil {
			return result, c.fail(turn, conv, assistant.ID, err, sink, turnLogger)
		}

		final, err := c.stream(ctx, messages, conv, assistant.ID, sink, turnLogger)
		if err != nil {
			if isAbort(ctx, err) {
				_ = turn.Fire(EventAbort)
				conv.Remove(assistant.ID)
				sink(Update{Type: UpdateStopped, MessageID: assistant.ID})
				turnLogger.Info("Generation turn aborted")
				return result, context.Canceled
			}
			return result, c.fail(turn, conv, assistant.ID, err, sink, turnLogger)
		}

		if err := turn.Fire(EventSettle); err != nil {
			return result, err
		}
		result.Artifact = final
		if final.HasArtifact() {
			result.Project = project.Assemble(project.FromArtifact(final))
			break
		}

		if turn.Retries() > 0 {
			turnLogger.Warn("No artifact after the strict-format retry")
			return result, c.fail(turn, conv, assistant.ID, ErrNoArtifact, sink, turnLogger)
		}
		if err := turn.Fire(EventRetry); err != nil {
			return result, err
		}
		turnRetries.Inc()
		turnLogger.Info("No artifact in response, retrying with strict format instruction")
		sink(Update{Type: UpdateRetry, MessageID: assistant.ID})
		strict = true
	}

	sink(Update{Type: UpdateDone, MessageID: assistant.ID, Artifact: &result.Artifact})
	return result, nil
}

func isAbort(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return errors.Is(ctx.Err(), context.Canceled)
}

// fail moves the turn to errored and leaves a terminal error message in the transcript.
func (c *Controller) fail(turn *Turn, conv *Conversation, messageID string, cause error, sink UpdateSink, turnLogger *logrus.Entry) error {
	if err := turn.Fire(EventFail); err != nil {
		turnLogger.WithError(err).Error("Failed to mark turn as errored")
	}
	userMessage := getErrorMessage(cause)
	conv.Update(messageID, func(m *Message) {
		m.Content = userMessage
		m.Error = true
	})
	turnLogger.WithError(cause).Error("Generation turn failed")
	sink(Update{Type: UpdateError, MessageID: messageID, Error: userMessage})
	return cause
}

func (c *Controller) buildMessages(history []Message, prompt string, strict bool) ([]PromptMessage, error) {
	system, err := GeneratorPrompt().Format(map[string]any{
		"today": c.now().Format("January 02, 2006"),
	})
	if err != nil {
		return nil, fmt.Errorf("format generator prompt: %w", err)
	}

	messages := make([]PromptMessage, 0, len(history)+2)
	messages = append(messages, PromptMessage{Role: "system", Content: system})
	for _, m := range history {
		messages = append(messages, PromptMessage{Role: m.Role, Content: m.Transcript()})
	}
	if strict {
		prompt += StrictFormatInstruction
	}
	messages = append(messages, PromptMessage{Role: RoleUser, Content: prompt})
	return messages, nil
}

type frameResult struct {
	frame stream.Frame
	err   error
}

// stream runs one model request and returns the final parse of its text.
func (c *Controller) stream(ctx context.Context, messages []PromptMessage, conv *Conversation, messageID string, sink UpdateSink, turnLogger *logrus.Entry) (artifact.Artifact, error) {
	body, framing, err := c.backend.Stream(ctx, messages)
	if err != nil {
		return artifact.Artifact{}, err
	}
	defer body.Close()

	dec := stream.NewDecoder(body, framing)
	frames := make(chan frameResult)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			f, err := dec.Next(ctx)
			select {
			case frames <- frameResult{frame: f, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	acc := &accumulator{conv: conv, messageID: messageID, previews: c.previews, sink: sink, logger: turnLogger}
	var timer *time.Timer
	var tick <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		framesDropped.Add(float64(dec.Dropped()))
	}()

	for {
		select {
		case <-tick:
			tick = nil
			acc.flush(false)

		case res := <-frames:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return acc.flush(true), nil
				}
				return artifact.Artifact{}, res.err
			}
			framesDecoded.WithLabelValues(res.frame.Kind.String()).Inc()

			switch res.frame.Kind {
			case stream.KindText:
				acc.text.WriteString(res.frame.Text)
			case stream.KindReasoning:
				acc.reasoning.WriteString(res.frame.Text)
			case stream.KindDone:
				continue
			}
			acc.dirty = true

			if c.config.DebounceInterval <= 0 {
				acc.flush(false)
				continue
			}
			if tick == nil {
				if timer == nil {
					timer = time.NewTimer(c.config.DebounceInterval)
				} else {
					timer.Reset(c.config.DebounceInterval)
				}
				tick = timer.C
			}
		}
	}
}

// accumulator owns the text of one model request and pushes parses of it.
type accumulator struct {
	conv      *Conversation
	messageID string
	previews  PreviewPublisher
	sink      UpdateSink
	logger    *logrus.Entry

	text      strings.Builder
	reasoning strings.Builder
	dirty     bool
	published string
}

func (a *accumulator) flush(final bool) artifact.Artifact {
	if !a.dirty && !final {
		return artifact.Artifact{}
	}
	a.dirty = false
	start := time.Now()

	var parsed artifact.Artifact
	if final {
		parsed = artifact.ParseFinal(a.text.String())
		if parsed.Truncated {
			a.logger.Warn("Model response ended inside an open artifact block, keeping what was received")
		}
	} else {
		parsed = artifact.Parse(a.text.String())
	}
	if streamed := strings.TrimSpace(a.reasoning.String()); streamed != "" {
		parsed.Reasoning = strings.TrimSpace(streamed + "\n\n" + parsed.Reasoning)
	}

	a.conv.Update(a.messageID, func(m *Message) { m.applyArtifact(parsed) })
	snapshot := parsed
	a.sink(Update{Type: UpdateArtifact, MessageID: a.messageID, Artifact: &snapshot})

	if parsed.HasArtifact() && a.previews != nil {
		if key := fingerprint(parsed); key != a.published {
			a.published = key
			p := project.Assemble(project.FromArtifact(parsed))
			entry := a.previews.Publish(a.messageID, p)
			a.sink(Update{Type: UpdatePreview, MessageID: a.messageID, PreviewID: entry.ID, Version: entry.Version})
		}
	}
	parseDuration.Observe(time.Since(start).Seconds())
	return parsed
}

// fingerprint identifies the renderable part of a, so prose-only updates do not
// reload the preview.
func fingerprint(a artifact.Artifact) string {
	var b strings.Builder
	b.WriteString(a.EntryFile)
	b.WriteByte(0)
	b.WriteString(a.Code)
	if a.Files != nil {
		for _, p := range a.Files.Paths() {
			src, _ := a.Files.Get(p)
			b.WriteByte(0)
			b.WriteString(p)
			b.WriteByte(0)
			b.WriteString(src)
		}
	}
	return b.String()
}

// getErrorMessage turns a turn or agent failure into the text shown to the user.
func getErrorMessage(err error) string {
	var statusErr *StatusError
	var remoteErr *stream.RemoteError

	errorMsg := "I encountered an error processing your request. "
	switch {
	case errors.Is(err, ErrNoArtifact):
		errorMsg = "The model did not return a component I could render, even after asking again. Try describing the component in more detail."
	case errors.Is(err, context.DeadlineExceeded):
		errorMsg += "The request timed out. Please try a simpler request."
	case errors.As(err, &statusErr):
		errorMsg += fmt.Sprintf("The model service rejected the request (%d). Check the provider configuration and try again.", statusErr.StatusCode)
	case errors.As(err, &remoteErr):
		errorMsg += "The model reported an error: " + remoteErr.Message
	case strings.Contains(err.Error(), "unable to parse"):
		errorMsg += "The agent had trouble interpreting the tool output. Please try rephrasing your request."
	case strings.Contains(err.Error(), "max iterations"):
		errorMsg += "The request required too many steps to complete. Please ask a more specific question."
	default:
		errorMsg += "Please try again or contact support if the issue persists."
	}
	return errorMsg
}
