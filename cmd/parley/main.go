// Parley is a conversational agent with tool calling.
//
// It exposes an HTTP API for chat, thread history, and a websocket
// stream, plus a CLI for one-shot questions and thread administration.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	parley serve                 Start the API server
//	parley init [dir]            Initialize a working directory with defaults
//	parley ask <question>        Ask a single question (for testing)
//	parley threads               List stored thread IDs
//	parley threads rm <id>       Delete a thread
//	parley hashpw <password>     Hash a password for the config file
//	parley version               Print version and build information
//	parley -o json version       Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/oswin/parley/internal/agent"
	"github.com/oswin/parley/internal/api"
	"github.com/oswin/parley/internal/auth"
	"github.com/oswin/parley/internal/buildinfo"
	"github.com/oswin/parley/internal/config"
	"github.com/oswin/parley/internal/llm"
	"github.com/oswin/parley/internal/memory"
	"github.com/oswin/parley/internal/retry"
	"github.com/oswin/parley/internal/search"
	"github.com/oswin/parley/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the parley command. All OS-level
// dependencies are injected as parameters so tests can drive the full
// lifecycle. Arguments are parsed by hand; the flag package relies on
// package-level globals (flag.CommandLine), which makes it impossible
// to call run() concurrently from tests, and the argument surface here
// is small enough that manual parsing is clearer than a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: parley ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "threads":
		return runThreads(stdout, configPath, cmdArgs)
	case "hashpw":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: parley hashpw <password>")
		}
		return runHashPassword(stdout, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe starts the API server and blocks until shutdown.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level, "text")
	logger.Info(buildinfo.String())
	logger.Info("config loaded", "path", cfgPath)

	db, err := memory.Open(filepath.Join(cfg.DataDir, "parley.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := memory.NewStore(db, logger)
	if err != nil {
		return err
	}

	loop, registry, err := buildAgent(cfg, store, logger)
	if err != nil {
		return err
	}

	authMgr := auth.NewManager(cfg.Auth.Users, logger)
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, store, registry, authMgr, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Parley stopped")
	return nil
}

// runAsk processes a single question in a throwaway thread and prints
// the reply. Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, slog.LevelWarn, "text")
	logger.Debug("config loaded", "path", cfgPath)

	question := strings.Join(args, " ")

	// Nothing to persist for a one-shot: the loop runs storeless.
	loop, _, err := buildAgent(cfg, nil, logger)
	if err != nil {
		return err
	}

	threadID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	state := []llm.Message{{Role: "user", Content: question}}
	state, err = loop.Run(ctx, threadID.String(), state)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	for i := len(state) - 1; i >= 0; i-- {
		if state[i].Role == "assistant" && state[i].Content != "" {
			fmt.Fprintln(stdout, state[i].Content)
			return nil
		}
	}
	fmt.Fprintln(stdout, "(no reply)")
	return nil
}

// runThreads lists stored threads, or deletes one with "rm <id>".
func runThreads(stdout io.Writer, configPath string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, slog.LevelWarn, "text")

	db, err := memory.Open(filepath.Join(cfg.DataDir, "parley.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := memory.NewStore(db, logger)
	if err != nil {
		return err
	}

	if len(args) >= 2 && args[0] == "rm" {
		if store.Delete(args[1]) {
			fmt.Fprintf(stdout, "deleted %s\n", args[1])
			return nil
		}
		return fmt.Errorf("deletion failed: %s", args[1])
	}

	ids, err := store.ListThreads()
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(stdout, "no threads found")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(stdout, id)
	}
	return nil
}

// runHashPassword prints a bcrypt hash suitable for the auth.users
// section of the config file.
func runHashPassword(stdout io.Writer, password string) error {
	if !auth.ValidatePasswordStrength(password) {
		return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// buildAgent wires the registry, invoker, completion client, and loop
// from configuration. store may be nil for one-shot use.
func buildAgent(cfg *config.Config, store *memory.Store, logger *slog.Logger) (*agent.Loop, *tools.Registry, error) {
	registry, err := tools.NewRegistry(tools.Config{
		AlphaVantageKey: cfg.Tools.AlphaVantageKey,
		WeatherKey:      cfg.Tools.WeatherKey,
		NewsKey:         cfg.Tools.NewsKey,
		ExchangeKey:     cfg.Tools.ExchangeKey,
		NASAKey:         cfg.Tools.NASAKey,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	// Web search rides on the registry like any other tool but lives in
	// its own package behind the provider interface.
	mgr := search.NewManager("duckduckgo")
	mgr.Register(search.NewDuckDuckGo())
	if err := registry.Register(&tools.Tool{
		Name:        "web_search",
		Description: "Search the web for current information.",
		Parameters:  search.ToolDefinition(),
		Handler:     search.ToolHandler(mgr),
	}); err != nil {
		return nil, nil, err
	}

	invoker := retry.New(cfg.Retry.MaxAttempts, time.Duration(cfg.Retry.InitialDelayMS)*time.Millisecond, logger)
	client := llm.NewGroqClient(cfg.Completion.BaseURL, cfg.Completion.APIKey, cfg.Completion.Model, cfg.Completion.Temperature, logger)

	router := agent.NewRouter(client, registry, invoker, logger)
	executor := agent.NewExecutor(registry, invoker, logger)

	var threadStore agent.ThreadStore
	if store != nil {
		threadStore = store
	}
	loop := agent.NewLoop(router, executor, threadStore, cfg.Agent.MaxHops, logger)
	return loop, registry, nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Parley - Conversational Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: parley [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve            Start the API server")
	fmt.Fprintln(w, "  init [dir]       Initialize a working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask <question>   Ask a single question (for testing)")
	fmt.Fprintln(w, "  threads          List stored thread IDs")
	fmt.Fprintln(w, "  threads rm <id>  Delete a thread")
	fmt.Fprintln(w, "  hashpw <pw>      Hash a password for the config file")
	fmt.Fprintln(w, "  version          Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/parley/config.yaml, /etc/parley/config.yaml")
	return nil
}
