package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Telegram TelegramConfig
	OpenAI   OpenAIConfig
	Airtable AirtableConfig
	Pinecone PineconeConfig
	Storage  StorageConfig
	Admin    AdminConfig
	Session  SessionConfig
	Log      LogConfig
}

type TelegramConfig struct {
	Token string
}

type OpenAIConfig struct {
	APIKey      string
	AssistantID string
	// RunTimeout bounds the wait for a single assistant run.
	RunTimeout time.Duration
}

type AirtableConfig struct {
	APIKey      string
	BaseID      string
	ItemsTable  string
	HousesTable string
}

type PineconeConfig struct {
	APIKey string
	// IndexHost is the full data-plane URL of the index,
	// e.g. https://examples-abc123.svc.us-east-1-aws.pinecone.io
	IndexHost string
}

type StorageConfig struct {
	DataDir string
}

type AdminConfig struct {
	Addr string
	// Token protects the admin HTTP endpoints. Empty disables bearer auth
	// (the server binds to loopback by default).
	Token string
}

type SessionConfig struct {
	// TTL is how long an idle user session is kept before eviction.
	TTL time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		OpenAI: OpenAIConfig{
			RunTimeout: 90 * time.Second,
		},
		Airtable: AirtableConfig{
			ItemsTable:  "Items per property",
			HousesTable: "Houses Organization",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:4600",
		},
		Session: SessionConfig{
			TTL: 12 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".casera"
	}
	return filepath.Join(home, ".casera")
}

// Load reads configuration from a .env file in the working directory (if
// present) and the process environment. Missing required credentials are a
// startup failure: the process must not run half-configured.
func Load() (Config, error) {
	// Absence of .env is fine; the environment may carry everything.
	_ = godotenv.Load()
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()

	cfg.Telegram.Token = getenv("TELEGRAM_TOKEN")
	cfg.OpenAI.APIKey = getenv("OPENAI_API_KEY")
	cfg.OpenAI.AssistantID = getenv("ASSISTANT_ID")
	cfg.Airtable.APIKey = getenv("AIRTABLE_API_KEY")
	cfg.Airtable.BaseID = getenv("AIRTABLE_BASE_ID")
	cfg.Pinecone.APIKey = getenv("PINECONE_API_KEY")
	cfg.Pinecone.IndexHost = getenv("PINECONE_INDEX_HOST")

	if v := getenv("CASERA_ITEMS_TABLE"); v != "" {
		cfg.Airtable.ItemsTable = v
	}
	if v := getenv("CASERA_HOUSES_TABLE"); v != "" {
		cfg.Airtable.HousesTable = v
	}
	if v := getenv("CASERA_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("CASERA_ADMIN_ADDR"); v != "" {
		cfg.Admin.Addr = v
	}
	cfg.Admin.Token = getenv("CASERA_ADMIN_TOKEN")
	if v := getenv("CASERA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("CASERA_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CASERA_RUN_TIMEOUT %q: %w", v, err)
		}
		cfg.OpenAI.RunTimeout = d
	}
	if v := getenv("CASERA_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CASERA_SESSION_TTL %q: %w", v, err)
		}
		cfg.Session.TTL = d
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"TELEGRAM_TOKEN", c.Telegram.Token},
		{"OPENAI_API_KEY", c.OpenAI.APIKey},
		{"ASSISTANT_ID", c.OpenAI.AssistantID},
		{"AIRTABLE_API_KEY", c.Airtable.APIKey},
		{"AIRTABLE_BASE_ID", c.Airtable.BaseID},
		{"PINECONE_API_KEY", c.Pinecone.APIKey},
		{"PINECONE_INDEX_HOST", c.Pinecone.IndexHost},
	}
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s (set them in .env or the environment)",
			strings.Join(missing, ", "))
	}
	return nil
}
