// Package bot is the conversation engine: it dispatches Telegram updates,
// drives the grounded question/answer flow, and runs the correction state
// machine that feeds approved answers back into semantic memory.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matiasroig/casera/internal/assembler"
	"github.com/matiasroig/casera/internal/classify"
	"github.com/matiasroig/casera/internal/metrics"
	"github.com/matiasroig/casera/internal/storage"
	"github.com/matiasroig/casera/internal/telegram"
)

// CorrectionNote is stored with memorized corrections so retrieved
// examples carry their provenance. Shared with the seed retry path so
// replayed write-backs stay indistinguishable from live ones.
const CorrectionNote = "Expected answer provided by the user"

const apologyReply = "Sorry, something went wrong while answering. Please try again in a moment."

// Transport delivers updates in and replies out.
type Transport interface {
	Poll(ctx context.Context) ([]telegram.Update, error)
	Reply(ctx context.Context, chatID int64, text string) error
}

// Assistant generates answers on a per-user thread.
type Assistant interface {
	NewThread(ctx context.Context) (string, error)
	Ask(ctx context.Context, threadID, message string) (string, error)
}

// ContextAssembler gathers grounding context for a query.
type ContextAssembler interface {
	Assemble(ctx context.Context, query string, analysis classify.Analysis) assembler.Context
}

// ExampleWriter memorizes corrected answers. It reports success rather
// than returning an error because a failed write-back must not fail the
// correction flow.
type ExampleWriter interface {
	AddExample(ctx context.Context, query, response, userFeedback string) bool
}

// ConversationStore persists turns and feedback.
type ConversationStore interface {
	LogConversation(c storage.Conversation) (int64, error)
	AddFeedback(f storage.Feedback) (int64, error)
	LastConversation(userID int64) (storage.Conversation, error)
	GetConversation(id int64) (storage.Conversation, error)
	FeedbackStats() (storage.Stats, error)
}

// Engine wires transport, retrieval, the hosted assistant, and storage
// into the bot's turn loop.
type Engine struct {
	transport Transport
	assistant Assistant
	assembler ContextAssembler
	memory    ExampleWriter
	store     ConversationStore
	sessions  *Sessions
	logger    *slog.Logger
}

func NewEngine(
	transport Transport,
	assistant Assistant,
	ctxAssembler ContextAssembler,
	memory ExampleWriter,
	store ConversationStore,
	sessions *Sessions,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		transport: transport,
		assistant: assistant,
		assembler: ctxAssembler,
		memory:    memory,
		store:     store,
		sessions:  sessions,
		logger:    logger,
	}
}

// Run polls for updates until ctx is cancelled. Updates from different
// users are handled in parallel; a single user's updates within a batch
// run sequentially on one goroutine so the correction dialog sees them
// in the order they were sent.
func (e *Engine) Run(ctx context.Context) error {
	for {
		updates, err := e.transport.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("polling updates failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, batch := range groupByUser(updates) {
			go func(batch []telegram.Update) {
				for _, u := range batch {
					e.HandleUpdate(ctx, u)
				}
			}(batch)
		}
	}
}

// groupByUser splits a poll batch into one slice per user, preserving
// each user's message order.
func groupByUser(updates []telegram.Update) [][]telegram.Update {
	index := make(map[int64]int)
	var groups [][]telegram.Update
	for _, u := range updates {
		i, ok := index[u.UserID]
		if !ok {
			i = len(groups)
			index[u.UserID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], u)
	}
	return groups
}

// HandleUpdate processes one inbound message end to end and sends the reply.
func (e *Engine) HandleUpdate(ctx context.Context, u telegram.Update) {
	if strings.TrimSpace(u.Text) == "" {
		return
	}

	sess := e.sessions.Get(u.UserID)
	sess.Lock()
	defer sess.Unlock()

	var reply string
	if u.Command != "" {
		reply = e.handleCommand(ctx, sess, u)
	} else if sess.Mode == ModeAwaitingCorrection {
		reply = e.recordCorrection(ctx, sess, u)
	} else {
		reply = e.answer(ctx, sess, u)
	}

	if reply == "" {
		return
	}
	if err := e.transport.Reply(ctx, u.ChatID, reply); err != nil {
		e.logger.Error("sending reply failed", "user_id", u.UserID, "error", err)
	}
}

func (e *Engine) handleCommand(ctx context.Context, sess *Session, u telegram.Update) string {
	// Any command abandons a pending correction; /feedback restarts it
	// below and /cancel still acknowledges it.
	pending := sess.Mode == ModeAwaitingCorrection
	if pending {
		sess.Mode = ModeNormal
		sess.LastConversationID = 0
	}

	switch u.Command {
	case "start":
		return "Hi! I answer questions about the property: appliances, rooms, amenities and how to find things. Just ask.\n\nIf an answer is wrong, send /feedback and teach me the right one."
	case "help":
		return "Commands:\n/feedback - correct my last answer\n/cancel - abandon a pending correction\n/stats - usage statistics\n/help - this message"
	case "stats":
		return e.statsReply()
	case "feedback":
		return e.startCorrection(sess, u.UserID)
	case "cancel":
		if !pending {
			return "Nothing to cancel."
		}
		return "Correction cancelled."
	default:
		return "Unknown command. Send /help to see what I can do."
	}
}

// answer runs the grounded question/answer flow for a normal message.
// On assistant failure the turn is not logged, so a later /feedback
// cannot attach a correction to an answer the user never saw.
func (e *Engine) answer(ctx context.Context, sess *Session, u telegram.Update) string {
	response, err := e.runTurn(ctx, sess, u.UserID, u.Username, u.Text)
	if err != nil {
		return apologyReply
	}
	return response
}

// Answer runs one grounded turn outside Telegram, on a dedicated session.
// Used by the MCP ask tool; these turns share no thread with real users.
func (e *Engine) Answer(ctx context.Context, question string) (string, error) {
	sess := e.sessions.Get(mcpUserID)
	sess.Lock()
	defer sess.Unlock()
	return e.runTurn(ctx, sess, mcpUserID, "mcp", question)
}

// mcpUserID is the reserved session key for MCP turns. Telegram user IDs
// are always positive, so it cannot collide.
const mcpUserID = -1

func (e *Engine) runTurn(ctx context.Context, sess *Session, userID int64, username, text string) (string, error) {
	start := time.Now()
	log := e.logger.With("turn_id", uuid.NewString(), "user_id", userID)

	if sess.ThreadID == "" {
		threadID, err := e.assistant.NewThread(ctx)
		if err != nil {
			log.Error("creating thread failed", "error", err)
			metrics.TurnsTotal.WithLabelValues("error").Inc()
			return "", err
		}
		sess.ThreadID = threadID
	}

	analysis := classify.Classify(text)
	grounding := e.assembler.Assemble(ctx, text, analysis)

	response, err := e.assistant.Ask(ctx, sess.ThreadID, composeMessage(grounding.Text, text))
	if err != nil {
		log.Error("assistant turn failed", "error", err)
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	convID, err := e.store.LogConversation(storage.Conversation{
		UserID:       userID,
		Username:     username,
		UserMessage:  text,
		BotResponse:  response,
		ResponseTime: time.Since(start),
		UsedRecords:  grounding.UsedRecords,
		UsedMemory:   grounding.UsedMemory,
	})
	if err != nil {
		// The user still gets the answer; it just cannot be corrected later.
		log.Error("logging conversation failed", "error", err)
	} else {
		sess.LastConversationID = convID
	}

	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	log.Info("turn completed",
		"category", analysis.Category,
		"used_records", grounding.UsedRecords,
		"used_memory", grounding.UsedMemory,
		"duration", time.Since(start),
	)
	return response, nil
}

// startCorrection moves the session into the correction state.
func (e *Engine) startCorrection(sess *Session, userID int64) string {
	last, err := e.store.LastConversation(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return "There is no recent answer to correct yet. Ask me something first."
	}
	if err != nil {
		e.logger.Error("loading last conversation failed", "user_id", userID, "error", err)
		return apologyReply
	}

	sess.Mode = ModeAwaitingCorrection
	sess.LastConversationID = last.ID
	return fmt.Sprintf("My last answer was:\n\n%s\n\nPlease send the correct answer, or /cancel to keep it.", last.BotResponse)
}

// recordCorrection stores the user's expected answer as feedback and
// memorizes it as an approved example. The feedback row is written even
// when memorization fails; the processed flag records which happened.
func (e *Engine) recordCorrection(ctx context.Context, sess *Session, u telegram.Update) string {
	sess.Mode = ModeNormal
	convID := sess.LastConversationID
	sess.LastConversationID = 0

	conv, err := e.store.GetConversation(convID)
	if err != nil {
		e.logger.Error("loading conversation for correction failed", "user_id", u.UserID, "error", err)
		return apologyReply
	}

	memorized := e.memory.AddExample(ctx, conv.UserMessage, u.Text, CorrectionNote)
	metrics.CorrectionsTotal.WithLabelValues(fmt.Sprintf("%t", memorized)).Inc()

	if _, err := e.store.AddFeedback(storage.Feedback{
		ConversationID:   convID,
		UserID:           u.UserID,
		OriginalQuery:    conv.UserMessage,
		OriginalResponse: conv.BotResponse,
		Type:             storage.FeedbackCorrectedAnswer,
		Text:             u.Text,
		Processed:        memorized,
	}); err != nil {
		e.logger.Error("storing feedback failed", "user_id", u.UserID, "error", err)
		return apologyReply
	}

	if !memorized {
		return "Thanks, your correction was saved. I could not memorize it for future answers right now, but it will not be lost."
	}
	return "Thanks! I saved your correction and will use it to answer similar questions."
}

func (e *Engine) statsReply() string {
	st, err := e.store.FeedbackStats()
	if err != nil {
		e.logger.Error("loading stats failed", "error", err)
		return apologyReply
	}
	return fmt.Sprintf(
		"Conversations: %d\nFeedback entries: %d\nCorrections: %d\nPending write-backs: %d",
		st.Conversations, st.FeedbackTotal, st.Corrections, st.Unprocessed,
	)
}

// composeMessage prefixes the grounding context to the user's question so
// the assistant always answers from retrieved facts when any exist.
func composeMessage(contextText, question string) string {
	if contextText == "" {
		return question
	}
	return fmt.Sprintf("Context retrieved for this question:\n\n%s\n\nUser question: %s", contextText, question)
}
