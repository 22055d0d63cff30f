package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/coachd/internal/config"
	"github.com/stellarlinkco/coachd/internal/logpipe"
	"github.com/stellarlinkco/coachd/internal/maintenance"
	"github.com/stellarlinkco/coachd/internal/orchestrator"
	"github.com/stellarlinkco/coachd/internal/provider"
	"github.com/stellarlinkco/coachd/internal/server"
	"github.com/stellarlinkco/coachd/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "coachd",
	Short: "coachd - conversational nutrition and fitness coaching backend",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (turn pipeline + maintenance jobs)",
	RunE:  runServe,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the coach in a local REPL",
	RunE:  runChat,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coachd configuration status",
	RunE:  runStatus,
}

var userFlag string

func init() {
	chatCmd.Flags().StringVarP(&userFlag, "user", "u", "local", "User id for the REPL session")
	rootCmd.AddCommand(serveCmd, chatCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildOrchestrator() (*orchestrator.Orchestrator, *store.Store, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Providers.Fast.APIKey == "" && cfg.Providers.Premium.APIKey == "" {
		return nil, nil, nil, fmt.Errorf("no provider API key set. Run 'coachd onboard' or set OPENAI_API_KEY / ANTHROPIC_API_KEY")
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	router, err := provider.NewRouter(cfg)
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("build provider router: %w", err)
	}

	return orchestrator.New(cfg, st, router, nil), st, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	orch, st, cfg, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := maintenance.New(st, time.Duration(cfg.Orchestrator.PendingLogTTLHours)*time.Hour)
	if err := jobs.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer jobs.Stop()

	srv := server.New(orch, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	return srv.ListenAndServe(ctx)
}

func runChat(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	orch, st, _, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	conversationID := ""
	fmt.Println("coachd chat (type 'exit' to quit; 'yes' confirms a pending log, 'no' cancels it)")

	pendingID := ""
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		if pendingID != "" && (input == "yes" || input == "no") {
			if input == "yes" {
				outcome, err := orch.ConfirmPendingLog(ctx, userFlag, pendingID, logpipe.Edits{})
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					continue
				}
				fmt.Printf("Logged (%s).\n", outcome.LinkedEntityID)
			} else {
				if _, err := orch.CancelPendingLog(ctx, userFlag, pendingID, "user"); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					continue
				}
				fmt.Println("Discarded.")
			}
			pendingID = ""
			continue
		}

		result, err := orch.ProcessMessage(ctx, userFlag, conversationID, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		conversationID = result.ConversationID
		pendingID = result.PendingLogID
		fmt.Println(result.Reply)
	}
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("Database path: %s\n", cfg.DBPath)
	fmt.Println("Set OPENAI_API_KEY (fast tier) and ANTHROPIC_API_KEY (premium tier), then run 'coachd serve'.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	status := map[string]any{
		"config":        config.ConfigPath(),
		"db":            cfg.DBPath,
		"listen":        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"fast_model":    cfg.Providers.Fast.Model,
		"premium_model": cfg.Providers.Premium.Model,
		"fast_key":      cfg.Providers.Fast.APIKey != "",
		"premium_key":   cfg.Providers.Premium.APIKey != "",
	}
	data, _ := json.MarshalIndent(status, "", "  ")
	fmt.Println(string(data))
	return nil
}
