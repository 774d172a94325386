// Package telegram is a minimal Bot API client: long-polled updates in,
// text replies out. Only the handful of methods the bot needs.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// pollTimeout is the long-poll window passed to getUpdates.
const pollTimeout = 30 * time.Second

// Update is one inbound message, flattened to what the bot cares about.
type Update struct {
	UpdateID int64
	ChatID   int64
	UserID   int64
	Username string
	Text     string
	// Command is the bare command name ("start", "feedback") when the
	// message is a command, empty otherwise.
	Command string
}

// Client talks to the Telegram Bot API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	offset     int64
}

func New(token string) *Client {
	return NewWithBaseURL(token, defaultBaseURL)
}

// NewWithBaseURL is used by tests to point the client at a local server.
func NewWithBaseURL(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Must comfortably exceed the long-poll window.
			Timeout: pollTimeout + 10*time.Second,
		},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type wireUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From *struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

// Poll fetches the next batch of updates, blocking up to the long-poll
// window. The confirmed offset advances internally so each update is
// delivered once.
func (c *Client) Poll(ctx context.Context) ([]Update, error) {
	payload := map[string]any{
		"timeout":         int(pollTimeout.Seconds()),
		"allowed_updates": []string{"message"},
	}
	if c.offset != 0 {
		payload["offset"] = c.offset
	}

	var raw []wireUpdate
	if err := c.call(ctx, "getUpdates", payload, &raw); err != nil {
		return nil, err
	}

	updates := make([]Update, 0, len(raw))
	for _, wu := range raw {
		if wu.UpdateID >= c.offset {
			c.offset = wu.UpdateID + 1
		}
		if wu.Message == nil || wu.Message.From == nil {
			continue
		}
		u := Update{
			UpdateID: wu.UpdateID,
			ChatID:   wu.Message.Chat.ID,
			UserID:   wu.Message.From.ID,
			Username: wu.Message.From.Username,
			Text:     wu.Message.Text,
		}
		u.Command = parseCommand(u.Text)
		updates = append(updates, u)
	}
	return updates, nil
}

// Reply sends a plain text message to the chat.
func (c *Client) Reply(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

// Command is a bot command definition for SetCommands.
type Command struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// SetCommands registers the command menu shown by Telegram clients.
func (c *Client) SetCommands(ctx context.Context, commands []Command) error {
	return c.call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil)
}

// call posts a JSON payload to a Bot API method and decodes the result.
func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var api apiResponse
	if err := json.Unmarshal(data, &api); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !api.OK {
		return fmt.Errorf("%s failed: %s", method, api.Description)
	}
	if result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// parseCommand extracts the command name from a "/command@botname args"
// message, or returns "" for ordinary text.
func parseCommand(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0][1:]
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd
}
