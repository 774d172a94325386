// Package assistant drives a hosted OpenAI assistant through the
// thread/run API: create a thread per user, post the grounded message,
// poll the run until it settles, read back the reply.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// pollInterval is how often a pending run is re-checked.
const pollInterval = 700 * time.Millisecond

// ErrRunTimeout is returned when a run does not settle within the
// configured deadline. The underlying run keeps whatever state it had.
var ErrRunTimeout = errors.New("assistant run timed out")

// apiClient is the slice of the OpenAI client the engine needs.
// *openai.Client satisfies it.
type apiClient interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

// Client wraps the assistant API with polling and timeout handling.
type Client struct {
	api         apiClient
	assistantID string
	runTimeout  time.Duration
	logger      *slog.Logger
}

func New(api apiClient, assistantID string, runTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		api:         api,
		assistantID: assistantID,
		runTimeout:  runTimeout,
		logger:      logger,
	}
}

// NewThread creates a fresh conversation thread and returns its ID.
func (c *Client) NewThread(ctx context.Context) (string, error) {
	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}
	return thread.ID, nil
}

// Ask posts message to the thread, runs the assistant, and returns the
// newest assistant reply. It blocks until the run settles, the configured
// timeout elapses, or ctx is cancelled.
func (c *Client) Ask(ctx context.Context, threadID, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()

	if _, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	}); err != nil {
		return "", fmt.Errorf("posting message: %w", err)
	}

	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: c.assistantID})
	if err != nil {
		return "", fmt.Errorf("starting run: %w", err)
	}

	if err := c.waitForRun(ctx, threadID, run.ID); err != nil {
		return "", err
	}

	return c.latestReply(ctx, threadID)
}

// waitForRun polls the run status until it reaches a terminal state.
func (c *Client) waitForRun(ctx context.Context, threadID, runID string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		run, err := c.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("polling run %s: %w", runID, err)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			return nil
		case openai.RunStatusFailed, openai.RunStatusExpired, openai.RunStatusRequiresAction:
			c.logger.Warn("assistant run did not complete", "run_id", runID, "status", run.Status)
			return fmt.Errorf("run %s ended with status %s", runID, run.Status)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrRunTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// latestReply fetches the most recent assistant message from the thread.
func (c *Client) latestReply(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("listing messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return "", errors.New("thread has no messages after run")
	}

	msg := list.Messages[0]
	if msg.Role != openai.ChatMessageRoleAssistant {
		return "", fmt.Errorf("newest message has role %q, expected assistant", msg.Role)
	}
	for _, part := range msg.Content {
		if part.Text != nil {
			return part.Text.Value, nil
		}
	}
	return "", errors.New("assistant reply has no text content")
}
