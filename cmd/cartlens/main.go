// CartLens is a conversational analyst for e-commerce datasets.
//
// It exposes a session-based HTTP API and a CLI for one-shot questions.
// The agent answers by reasoning over datasets in a remote store through
// a closed set of analysis tools. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	cartlens serve             Start the API server
//	cartlens ask <question>    Ask a single question (for testing)
//	cartlens version           Print version and build information
//	cartlens -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cartlens/cartlens/internal/agent"
	"github.com/cartlens/cartlens/internal/api"
	"github.com/cartlens/cartlens/internal/artifact"
	"github.com/cartlens/cartlens/internal/buildinfo"
	"github.com/cartlens/cartlens/internal/config"
	"github.com/cartlens/cartlens/internal/dataset"
	"github.com/cartlens/cartlens/internal/engine"
	"github.com/cartlens/cartlens/internal/llm"
	"github.com/cartlens/cartlens/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// and delegates immediately to [run], keeping os.Exit, os.Stdout, and
// os.Args out of the application logic so the full lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the cartlens command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
				continue
			}
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	switch command {
	case "", "help":
		return printUsage(stdout)
	case "version":
		return runVersion(stdout, outputFmt)
	case "ask":
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Usage: cartlens [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve            Start the API server")
	fmt.Fprintln(w, "  ask <question>   Ask a single question (for testing)")
	fmt.Fprintln(w, "  version          Print version and build information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>   Config file (default: search standard locations)")
	fmt.Fprintln(w, "  -o <format>      Output format: text or json")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	if outputFmt == "json" {
		return json.NewEncoder(w).Encode(buildinfo.Info())
	}
	fmt.Fprintln(w, buildinfo.String())
	return nil
}

// newLogger builds the process logger writing to w at the configured
// level, with the trace level rendered by name. An unrecognized level
// falls back to info.
func newLogger(w io.Writer, levelName string) *slog.Logger {
	level, err := config.ParseLogLevel(levelName)
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	if err != nil {
		logger.Warn("invalid log level, using info", "log_level", levelName)
	}
	return logger
}

// buildManager assembles the full agent stack from config: store
// source, dataset provider, artifact store, tool registry, engine,
// loop, and session manager.
func buildManager(cfg *config.Config, logger *slog.Logger) (*agent.Manager, llm.Client, *artifact.Store, error) {
	source := dataset.NewHTTPSource(cfg.Store.BaseURL, cfg.Store.Token, logger)
	provider := dataset.NewProvider(source, logger,
		dataset.WithFetchTimeout(cfg.Store.FetchTimeout()),
		dataset.WithMaxRetries(cfg.Store.MaxRetries),
	)

	artifacts, err := artifact.NewStore(cfg.Artifacts.Dir, cfg.Artifacts.DBPath, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("artifact store: %w", err)
	}

	registry := tools.NewRegistry(provider, artifacts, logger)
	client := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
	eng := engine.New(client, cfg.Anthropic.Model, registry, logger)
	loop := agent.NewLoop(eng, registry, logger,
		agent.WithTurnBudget(cfg.Agent.TurnBudget),
		agent.WithLLMTimeout(cfg.Agent.LLMTimeout()),
	)
	manager := agent.NewManager(loop, agent.DefaultSystemPrompt, cfg.Agent.MaxHistoryMessages, logger)

	return manager, client, artifacts, nil
}

// runAsk starts a throwaway session, posts one question, and prints the
// reply. Clarification questions are printed too; an interactive
// back-and-forth belongs to the HTTP API.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cartlens ask <question>")
	}
	question := strings.Join(args, " ")

	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := newLogger(stderr, cfg.LogLevel)

	manager, _, artifacts, err := buildManager(cfg, logger)
	if err != nil {
		return err
	}
	defer artifacts.Close()

	sess := manager.StartSession()
	defer manager.EndSession(sess.ID)

	reply, err := manager.PostMessage(ctx, sess.ID, question)
	if err != nil {
		return err
	}

	if reply.Kind == agent.ReplyClarification {
		fmt.Fprintf(stdout, "[needs clarification] %s\n", reply.Content)
		return nil
	}
	fmt.Fprintln(stdout, reply.Content)
	return nil
}

// runServe loads config, assembles the agent stack, starts the API
// server, and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := newLogger(stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting", "build", buildinfo.String(), "config", path)

	manager, client, artifacts, err := buildManager(cfg, logger)
	if err != nil {
		return err
	}
	defer artifacts.Close()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, manager, client, logger)

	// SIGINT/SIGTERM cancel the context and trigger graceful shutdown.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	logger.Info("stopped", "uptime", buildinfo.Uptime())
	return nil
}
