package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Feedback types recorded against a conversation turn.
const (
	FeedbackCorrectedAnswer = "corrected_answer"
	FeedbackPositive        = "positive"
	FeedbackNegative        = "negative"
	FeedbackComment         = "comment"
)

// Conversation is one logged question/answer turn.
type Conversation struct {
	ID           int64
	UserID       int64
	Username     string
	UserMessage  string
	BotResponse  string
	ResponseTime time.Duration
	// UsedRecords and UsedMemory record which retrieval sources
	// contributed context to the turn.
	UsedRecords   bool
	UsedMemory    bool
	CreatedAt     time.Time
	FeedbackGiven bool
}

// Feedback is a correction or rating attached to a conversation turn. The
// original question and answer are denormalized onto the row so a feedback
// entry stays meaningful on its own.
type Feedback struct {
	ID               int64
	ConversationID   int64
	UserID           int64
	OriginalQuery    string
	OriginalResponse string
	Type             string
	// Text is the corrected answer for corrected_answer feedback, or the
	// free-text comment otherwise.
	Text      string
	CreatedAt time.Time
	Processed bool
}

// Stats summarizes logged activity for the /stats command and admin API.
type Stats struct {
	Conversations int
	FeedbackTotal int
	Corrections   int
	Unprocessed   int
}
