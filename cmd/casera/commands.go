package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/matiasroig/casera/internal/bot"
	"github.com/matiasroig/casera/internal/config"
	"github.com/matiasroig/casera/internal/memory"
	"github.com/matiasroig/casera/internal/storage"
	"github.com/matiasroig/casera/internal/telegram"
)

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show conversation and feedback statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/stats")
		if err != nil {
			return err
		}

		var stats map[string]any
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Conversations", "%v", stats["conversations"])
		printStatus("Feedback entries", "%v", stats["feedback"])
		printStatus("Corrections", "%v", stats["corrections"])
		printStatus("Pending write-backs", "%v", stats["pending_writebacks"])
		printStatus("Memorized examples", "%v", stats["examples"])
		return nil
	},
}

// --- examples ---

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "Inspect and manage memorized examples",
}

var examplesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memorized examples",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/examples?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Examples []struct {
				ID        string `json:"id"`
				Query     string `json:"query"`
				Response  string `json:"response"`
				CreatedAt string `json:"created_at"`
			} `json:"examples"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Examples) == 0 {
			fmt.Println("no examples stored")
			return nil
		}
		for _, ex := range result.Examples {
			fmt.Printf("%s  %s\n", ex.ID, ex.CreatedAt)
			fmt.Printf("  Q: %s\n", ex.Query)
			fmt.Printf("  A: %s\n", ex.Response)
		}
		return nil
	},
}

var examplesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a memorized example",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/examples/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted %s", result["deleted"])
		return nil
	},
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load approved examples into semantic memory",
	Long: `Load approved examples into semantic memory.

With --file, reads a JSON array of {"query", "response", "feedback"} objects
and stores each as an example. With --pending, retries corrections that
failed to reach memory when they were submitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		pending, _ := cmd.Flags().GetBool("pending")
		if file == "" && !pending {
			return fmt.Errorf("one of --file or --pending is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		mem := memory.New(
			memory.NewEmbedder(openai.NewClient(cfg.OpenAI.APIKey)),
			memory.NewPinecone(cfg.Pinecone.IndexHost, cfg.Pinecone.APIKey),
		)

		if file != "" {
			if err := seedFromFile(cmd, mem, file); err != nil {
				return err
			}
		}
		if pending {
			if err := seedPending(cmd, mem, cfg.Storage.DataDir); err != nil {
				return err
			}
		}
		return nil
	},
}

type seedEntry struct {
	Query    string `json:"query"`
	Response string `json:"response"`
	Feedback string `json:"feedback"`
}

// exampleAdder is the slice of semantic memory the seed command uses.
type exampleAdder interface {
	AddExample(ctx context.Context, query, response, userFeedback string) bool
}

func seedFromFile(cmd *cobra.Command, mem exampleAdder, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}

	var entries []seedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}

	stored := 0
	for i, e := range entries {
		if e.Query == "" || e.Response == "" {
			printWarning("entry %d skipped: query and response are required", i)
			continue
		}
		feedback := e.Feedback
		if feedback == "" {
			feedback = "Seeded example"
		}
		if !mem.AddExample(cmd.Context(), e.Query, e.Response, feedback) {
			printError("entry %d failed to store", i)
			continue
		}
		stored++
	}
	printSuccess("Stored %d of %d examples", stored, len(entries))
	return nil
}

func seedPending(cmd *cobra.Command, mem exampleAdder, dataDir string) error {
	store, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	pending, err := store.UnprocessedFeedback(100)
	if err != nil {
		return fmt.Errorf("listing pending feedback: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println("no pending write-backs")
		return nil
	}

	stored := 0
	for _, fb := range pending {
		if fb.OriginalQuery == "" || fb.Text == "" {
			printWarning("feedback %d skipped: missing query or corrected answer", fb.ID)
			continue
		}
		if !mem.AddExample(cmd.Context(), fb.OriginalQuery, fb.Text, bot.CorrectionNote) {
			printError("feedback %d failed to store", fb.ID)
			continue
		}
		if err := store.MarkFeedbackProcessed(fb.ID); err != nil {
			printWarning("feedback %d stored but not marked processed: %v", fb.ID, err)
			continue
		}
		stored++
	}
	printSuccess("Flushed %d of %d pending write-backs", stored, len(pending))
	return nil
}

// --- setup-commands ---

var setupCommandsCmd = &cobra.Command{
	Use:   "setup-commands",
	Short: "Register the bot command menu with Telegram",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		tg := telegram.New(cfg.Telegram.Token)
		err = tg.SetCommands(cmd.Context(), []telegram.Command{
			{Command: "start", Description: "What this bot does"},
			{Command: "feedback", Description: "Correct the last answer"},
			{Command: "cancel", Description: "Abandon a pending correction"},
			{Command: "stats", Description: "Usage statistics"},
			{Command: "help", Description: "List commands"},
		})
		if err != nil {
			return err
		}
		printSuccess("Command menu registered")
		return nil
	},
}

func init() {
	examplesListCmd.Flags().Int("limit", 20, "maximum examples to list")
	examplesCmd.AddCommand(examplesListCmd)
	examplesCmd.AddCommand(examplesDeleteCmd)

	seedCmd.Flags().String("file", "", "JSON file with examples to load")
	seedCmd.Flags().Bool("pending", false, "retry corrections that never reached memory")
}
