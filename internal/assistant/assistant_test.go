package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type fakeAPI struct {
	// statuses is consumed one per RetrieveRun call; the last entry repeats.
	statuses []openai.RunStatus
	reply    string

	createMessageErr error
	createRunErr     error

	polls    int
	messages []string
}

func (f *fakeAPI) CreateThread(context.Context, openai.ThreadRequest) (openai.Thread, error) {
	return openai.Thread{ID: "thread_abc"}, nil
}

func (f *fakeAPI) CreateMessage(_ context.Context, _ string, req openai.MessageRequest) (openai.Message, error) {
	if f.createMessageErr != nil {
		return openai.Message{}, f.createMessageErr
	}
	f.messages = append(f.messages, req.Content)
	return openai.Message{}, nil
}

func (f *fakeAPI) CreateRun(context.Context, string, openai.RunRequest) (openai.Run, error) {
	if f.createRunErr != nil {
		return openai.Run{}, f.createRunErr
	}
	return openai.Run{ID: "run_1", Status: openai.RunStatusQueued}, nil
}

func (f *fakeAPI) RetrieveRun(context.Context, string, string) (openai.Run, error) {
	idx := f.polls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.polls++
	return openai.Run{ID: "run_1", Status: f.statuses[idx]}, nil
}

func (f *fakeAPI) ListMessage(context.Context, string, *int, *string, *string, *string, *string) (openai.MessagesList, error) {
	return openai.MessagesList{Messages: []openai.Message{{
		Role: openai.ChatMessageRoleAssistant,
		Content: []openai.MessageContent{{
			Type: "text",
			Text: &openai.MessageText{Value: f.reply},
		}},
	}}}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAskPollsUntilCompleted(t *testing.T) {
	api := &fakeAPI{
		statuses: []openai.RunStatus{openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCompleted},
		reply:    "The keys are in the drawer.",
	}
	c := New(api, "asst_1", 30*time.Second, testLogger())

	got, err := c.Ask(context.Background(), "thread_abc", "where are the keys?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "The keys are in the drawer." {
		t.Errorf("unexpected reply: %q", got)
	}
	if api.polls != 3 {
		t.Errorf("expected 3 polls, got %d", api.polls)
	}
	if len(api.messages) != 1 || api.messages[0] != "where are the keys?" {
		t.Errorf("unexpected posted messages: %v", api.messages)
	}
}

func TestAskFailedRun(t *testing.T) {
	api := &fakeAPI{statuses: []openai.RunStatus{openai.RunStatusFailed}}
	c := New(api, "asst_1", 30*time.Second, testLogger())

	_, err := c.Ask(context.Background(), "thread_abc", "q")
	if err == nil {
		t.Fatal("expected error for failed run")
	}
}

func TestAskTimesOut(t *testing.T) {
	// Run never settles; the deadline must cut the poll loop short.
	api := &fakeAPI{statuses: []openai.RunStatus{openai.RunStatusInProgress}}
	c := New(api, "asst_1", 50*time.Millisecond, testLogger())

	start := time.Now()
	_, err := c.Ask(context.Background(), "thread_abc", "q")
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestAskMessageError(t *testing.T) {
	api := &fakeAPI{createMessageErr: errors.New("boom")}
	c := New(api, "asst_1", time.Second, testLogger())

	if _, err := c.Ask(context.Background(), "thread_abc", "q"); err == nil {
		t.Fatal("expected error when posting fails")
	}
}

func TestNewThread(t *testing.T) {
	c := New(&fakeAPI{}, "asst_1", time.Second, testLogger())

	id, err := c.NewThread(context.Background())
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	if id != "thread_abc" {
		t.Errorf("unexpected thread ID %q", id)
	}
}
