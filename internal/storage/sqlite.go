// Package storage persists conversation turns and user feedback in SQLite.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding conversation logs and feedback.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "casera.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Conversation logs ---

// LogConversation inserts a completed turn and returns its row ID.
func (s *Store) LogConversation(c Conversation) (int64, error) {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.Exec(`
		INSERT INTO conversation_logs (user_id, username, user_message, bot_response, response_time_ms, used_records, used_memory, created_at, feedback_given)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		c.UserID, c.Username, c.UserMessage, c.BotResponse,
		c.ResponseTime.Milliseconds(), boolToInt(c.UsedRecords), boolToInt(c.UsedMemory),
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) scanConversation(row *sql.Row) (Conversation, error) {
	var c Conversation
	var createdAt string
	var responseTimeMs int64
	var usedRecords, usedMemory, feedbackGiven int
	err := row.Scan(&c.ID, &c.UserID, &c.Username, &c.UserMessage, &c.BotResponse,
		&responseTimeMs, &usedRecords, &usedMemory, &createdAt, &feedbackGiven)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.ResponseTime = time.Duration(responseTimeMs) * time.Millisecond
	c.UsedRecords = usedRecords != 0
	c.UsedMemory = usedMemory != 0
	c.CreatedAt = t
	c.FeedbackGiven = feedbackGiven != 0
	return c, nil
}

const conversationColumns = `id, user_id, username, user_message, bot_response, response_time_ms, used_records, used_memory, created_at, feedback_given`

// LastConversation returns the most recent turn logged for the user.
func (s *Store) LastConversation(userID int64) (Conversation, error) {
	row := s.db.QueryRow(`
		SELECT `+conversationColumns+`
		FROM conversation_logs WHERE user_id = ? ORDER BY id DESC LIMIT 1`, userID)
	return s.scanConversation(row)
}

// GetConversation fetches a turn by row ID.
func (s *Store) GetConversation(id int64) (Conversation, error) {
	row := s.db.QueryRow(`
		SELECT `+conversationColumns+`
		FROM conversation_logs WHERE id = ?`, id)
	return s.scanConversation(row)
}

// --- Feedback ---

// AddFeedback records feedback for a turn and marks the turn as corrected.
// Both writes happen in one transaction so a conversation is never flagged
// without its feedback row (or vice versa).
func (s *Store) AddFeedback(f Feedback) (int64, error) {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning feedback transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE conversation_logs SET feedback_given = 1 WHERE id = ?`, f.ConversationID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	res, err = tx.Exec(`
		INSERT INTO feedback (conversation_log_id, user_id, original_query, original_response, feedback_type, feedback_text, created_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ConversationID, f.UserID, f.OriginalQuery, f.OriginalResponse, f.Type, f.Text,
		createdAt.UTC().Format(time.RFC3339), boolToInt(f.Processed),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing feedback: %w", err)
	}
	return id, nil
}

// MarkFeedbackProcessed flags a feedback row as written through to semantic memory.
func (s *Store) MarkFeedbackProcessed(id int64) error {
	res, err := s.db.Exec(`UPDATE feedback SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnprocessedFeedback lists corrections that never made it into semantic
// memory, oldest first. Used by the seed command to retry failed write-backs.
func (s *Store) UnprocessedFeedback(limit int) ([]Feedback, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_log_id, user_id, original_query, original_response, feedback_type, feedback_text, created_at, processed
		FROM feedback WHERE processed = 0 ORDER BY id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Feedback
	for rows.Next() {
		var f Feedback
		var createdAt string
		var processed int
		if err := rows.Scan(&f.ID, &f.ConversationID, &f.UserID, &f.OriginalQuery, &f.OriginalResponse, &f.Type, &f.Text, &createdAt, &processed); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		f.CreatedAt = t
		f.Processed = processed != 0
		results = append(results, f)
	}
	return results, rows.Err()
}

// FeedbackStats aggregates counts for the /stats command and admin API.
func (s *Store) FeedbackStats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversation_logs`).Scan(&st.Conversations); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM feedback`).Scan(&st.FeedbackTotal); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM feedback WHERE feedback_type = ?`, FeedbackCorrectedAnswer).Scan(&st.Corrections); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM feedback WHERE processed = 0`).Scan(&st.Unprocessed); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
