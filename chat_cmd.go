package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"showcase/core"
	"showcase/stream"
)

// Chat command flags
var (
	chatServer    string
	chatSession   string
	chatReasoning bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message to a running server's chatbot and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "http://localhost:8080", "showcase server URL")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "continue an existing chat session")
	chatCmd.Flags().BoolVarP(&chatReasoning, "reasoning", "r", false, "print the model's reasoning to stderr")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	body, err := json.Marshal(core.ChatRequest{
		Message:   strings.Join(args, " "),
		SessionID: chatSession,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(chatServer, "/")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("chat request failed with %s: %s", resp.Status, apiErr["error"])
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	err = stream.Decode(ctx, resp.Body, stream.FramingPrefixed, func(f stream.Frame) {
		switch f.Kind {
		case stream.KindText:
			fmt.Fprint(out, f.Text)
		case stream.KindReasoning:
			if chatReasoning {
				fmt.Fprint(errOut, f.Text)
			}
		}
	})
	fmt.Fprintln(out)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if id := resp.Header.Get("X-Session-ID"); id != "" && id != chatSession {
		fmt.Fprintf(errOut, "session: %s\n", id)
	}
	return nil
}
