package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matiasroig/casera/internal/api"
	"github.com/matiasroig/casera/internal/assembler"
	"github.com/matiasroig/casera/internal/assistant"
	"github.com/matiasroig/casera/internal/bot"
	"github.com/matiasroig/casera/internal/config"
	"github.com/matiasroig/casera/internal/memory"
	"github.com/matiasroig/casera/internal/records"
	"github.com/matiasroig/casera/internal/storage"
	"github.com/matiasroig/casera/internal/telegram"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bot (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "casera version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Structured records.
	airtable := records.NewAirtable(records.AirtableConfig{
		APIKey: cfg.Airtable.APIKey,
		BaseID: cfg.Airtable.BaseID,
	})
	searcher := records.NewSearcher(airtable, cfg.Airtable.ItemsTable, cfg.Airtable.HousesTable)
	if err := searcher.TestConnectivity(ctx); err != nil {
		// The bot still starts; record search degrades to empty results.
		printWarning("record source unreachable: %v", err)
	} else {
		printSuccess("record source reachable")
	}

	// Semantic memory.
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey)
	mem := memory.New(
		memory.NewEmbedder(openaiClient),
		memory.NewPinecone(cfg.Pinecone.IndexHost, cfg.Pinecone.APIKey),
	)

	// Conversation engine.
	assist := assistant.New(openaiClient, cfg.OpenAI.AssistantID, cfg.OpenAI.RunTimeout, logger)
	sessions := bot.NewSessions(cfg.Session.TTL)
	tg := telegram.New(cfg.Telegram.Token)
	engine := bot.NewEngine(
		tg,
		assist,
		assembler.New(searcher, mem),
		mem,
		store,
		sessions,
		logger,
	)

	// Session janitor.
	go sessions.Janitor(ctx.Done(), 10*time.Minute)

	// Admin HTTP server.
	adminHandler := api.NewAdminHandler(api.AdminDeps{
		Store:   store,
		Memory:  mem,
		Records: searcher,
		Token:   cfg.Admin.Token,
	})
	adminSrv := &http.Server{
		Addr:    cfg.Admin.Addr,
		Handler: adminHandler,
	}

	// MCP server on stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Memory:   mem,
		Answerer: engine,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("MCP stdio server error", "error", err)
		}
	}()
	logger.Info("MCP server started (stdio transport)")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("admin API listening", "addr", cfg.Admin.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("polling for updates")
		err := engine.Run(gCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return adminSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
