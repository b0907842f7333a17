// Package main provides the CLI entry point for sidekick.
//
// sidekick is an inline AI assistant request manager. It composes prompts
// from editor context and local skill documents, runs the assistant CLI as
// a single-flight child process, and reports progress through whichever
// surface the host provides.
//
// Usage:
//
//	sidekick ask "<text>" [--file PATH] [--lines N:M] [--session]
//	sidekick terminal           Open an interactive assistant session
//	sidekick serve              Start the HTTP service
//	sidekick mcp                Start MCP server (stdio mode)
//	sidekick skills             List skills for the current project
//	sidekick status             Show service status
//	sidekick stop               Stop the running service
//	sidekick version            Show version
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/sidekick/internal/api"
	"github.com/ternarybob/sidekick/internal/config"
	"github.com/ternarybob/sidekick/internal/mcp"
	"github.com/ternarybob/sidekick/internal/service"
	"github.com/ternarybob/sidekick/internal/term"
	"github.com/ternarybob/sidekick/pkg/assist"
	projcfg "github.com/ternarybob/sidekick/pkg/config"
	"github.com/ternarybob/sidekick/pkg/display"
	"github.com/ternarybob/sidekick/pkg/prompt"
	"github.com/ternarybob/sidekick/pkg/runner"
	"github.com/ternarybob/sidekick/pkg/session"
	"github.com/ternarybob/sidekick/pkg/skill"
)

// version is set via -ldflags at build time
var version = "dev"

func main() {
	api.Version = version

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "ask":
		err = cmdAsk(args)
	case "serve", "start":
		err = cmdServe()
	case "mcp", "mcp-server":
		err = cmdMCP()
	case "terminal":
		err = cmdTerminal()
	case "skills":
		err = cmdSkills()
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sidekick - Inline AI assistant request manager

Commands:
  ask "<text>" [flags]   Ask the assistant from the terminal
  terminal               Open an interactive assistant session
  serve                  Start the HTTP service (default port 8421)
  mcp                    Start MCP server (stdio mode)
  skills                 List skills for the current project
  status                 Show service status
  stop                   Stop the running service
  version                Show version information
  help                   Show this help

Ask flags:
  --file PATH            Attach a file as context
  --lines N:M            Restrict the attached file to a line range
  --session              Resume the stored continuation, if one is held

Configuration:
  Project:  .sidekick.toml in the working directory
  Service:  ~/.sidekick/config.yaml (or %APPDATA%\sidekick on Windows)

Examples:
  sidekick ask "explain this error" --file main.go --lines 40:60
  sidekick serve
  curl localhost:8421/health`)
}

func cmdVersion() {
	fmt.Printf("sidekick version %s\n", version)
}

// signalRefresher nudges a channel whenever a request settles.
type signalRefresher chan struct{}

func (r signalRefresher) Refresh() {
	select {
	case r <- struct{}{}:
	default:
	}
}

func cmdAsk(args []string) error {
	if len(args) < 1 || strings.HasPrefix(args[0], "--") {
		return fmt.Errorf("usage: sidekick ask \"<text>\" [--file PATH] [--lines N:M] [--session]")
	}

	text := args[0]
	var filePath, lineRange string
	useSession := false

	for i := 1; i < len(args); i++ {
		switch {
		case args[i] == "--file" && i+1 < len(args):
			filePath = args[i+1]
			i++
		case args[i] == "--lines" && i+1 < len(args):
			lineRange = args[i+1]
			i++
		case args[i] == "--session":
			useSession = true
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	proj, err := projcfg.Load(cwd)
	if err != nil {
		return fmt.Errorf("load project config: %w", err)
	}

	fc, err := readFileContext(filePath, lineRange)
	if err != nil {
		return err
	}

	registry := skill.NewRegistry(proj.SkillsDir)
	composer := prompt.NewComposer(registry)
	sessions := session.NewStore()
	surface := term.NewSurface(os.Stdout)
	settled := make(signalRefresher, 1)

	manager := assist.NewManager(assistConfig(proj), runner.NewExecRunner(cwd),
		surface, sessions, assist.WithRefresher(settled))

	region := display.Region{ID: "terminal", Path: fc.Path,
		StartLine: fc.StartLine, EndLine: fc.EndLine}
	manager.Start(assist.Request{
		Prompt:     composer.Compose(text, fc),
		Region:     region,
		UseSession: useSession,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			manager.Cancel()
			fmt.Println()
			os.Exit(130)
		case <-settled:
		case <-time.After(100 * time.Millisecond):
		}

		if !manager.Busy() {
			fmt.Println()
			if manager.Snapshot().Phase == "failed" {
				os.Exit(1)
			}
			return nil
		}
	}
}

// readFileContext loads the optional file attachment for an ask. lineRange
// is "N:M" (1-based, inclusive) and restricts the excerpt to those lines.
func readFileContext(path, lineRange string) (prompt.FileContext, error) {
	if path == "" {
		return prompt.FileContext{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompt.FileContext{}, fmt.Errorf("read file: %w", err)
	}

	fc := prompt.FileContext{
		Path:     path,
		Filetype: strings.TrimPrefix(filepath.Ext(path), "."),
		Text:     string(data),
	}

	if lineRange != "" {
		start, end, err := parseLineRange(lineRange)
		if err != nil {
			return prompt.FileContext{}, err
		}
		lines := strings.Split(string(data), "\n")
		if start > len(lines) {
			return prompt.FileContext{}, fmt.Errorf("line range %s out of bounds (%d lines)", lineRange, len(lines))
		}
		if end > len(lines) {
			end = len(lines)
		}
		fc.StartLine = start
		fc.EndLine = end
		fc.Text = strings.Join(lines[start-1:end], "\n")
	}

	return fc, nil
}

func parseLineRange(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid line range %q (want N:M)", s)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil || start < 1 {
		return 0, 0, fmt.Errorf("invalid start line %q", parts[0])
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("invalid end line %q", parts[1])
	}
	return start, end, nil
}

func assistConfig(proj *projcfg.Config) assist.Config {
	return assist.Config{
		Binary:               proj.Binary,
		Model:                proj.Model,
		AllowTools:           proj.AllowTools,
		AllowedTools:         proj.AllowedTools,
		SkipPermissionChecks: proj.SkipPermissionChecks,
	}
}

// cmdTerminal hands the terminal over to the assistant itself for an
// interactive session, with the project's model and permission settings.
func cmdTerminal() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	proj, err := projcfg.Load(cwd)
	if err != nil {
		return fmt.Errorf("load project config: %w", err)
	}

	cfg := assistConfig(proj)
	bin := cfg.Binary
	if bin == "" {
		bin = "claude"
	}
	path, err := runner.NewExecRunner(cwd).LookPath(bin)
	if err != nil {
		return fmt.Errorf("assistant '%s' not found in PATH", bin)
	}

	argv := assist.TerminalArgv(cfg, path, "")
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func cmdServe() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !cfg.API.Enabled {
		return fmt.Errorf("api is disabled in %s", config.DefaultConfigPath())
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("service already running (PID %d)", pid)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	proj, err := projcfg.Load(cwd)
	if err != nil {
		return fmt.Errorf("load project config: %w", err)
	}

	registry := skill.NewRegistry(proj.SkillsDir)
	composer := prompt.NewComposer(registry)
	sessions := session.NewStore()
	frames := display.NewRecorder()
	manager := assist.NewManager(assistConfig(proj), runner.NewExecRunner(cwd),
		frames, sessions)

	apiServer := api.NewServer(cfg, manager, composer, registry, sessions, frames)
	daemon := service.NewDaemon(cfg)

	if err := daemon.Start(apiServer.Handler()); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	watcher := watchSkills(registry)
	if watcher != nil {
		defer watcher.Stop()
	}

	fmt.Printf("sidekick v%s started on %s\n", version, cfg.Address())
	fmt.Printf("API: http://%s/status\n", cfg.Address())

	daemon.Wait()
	return nil
}

// watchSkills logs skill document changes while the service runs. Detection
// rereads the skills directory on every request, so the watcher is purely
// informational; a nil return means watching is unavailable on this system.
func watchSkills(registry *skill.Registry) *skill.Watcher {
	w, err := skill.NewWatcher(registry)
	if err != nil {
		return nil
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return nil
	}

	go func() {
		for id := range w.Changes() {
			fmt.Printf("skill changed: %s\n", id)
		}
	}()

	return w
}

func cmdMCP() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	proj, err := projcfg.Load(cwd)
	if err != nil {
		return fmt.Errorf("load project config: %w", err)
	}

	registry := skill.NewRegistry(proj.SkillsDir)
	composer := prompt.NewComposer(registry)
	sessions := session.NewStore()
	frames := display.NewRecorder()
	manager := assist.NewManager(assistConfig(proj), runner.NewExecRunner(cwd),
		frames, sessions)

	return mcp.NewServer(manager, composer, registry, sessions).ServeStdio()
}

func cmdSkills() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	proj, err := projcfg.Load(cwd)
	if err != nil {
		return fmt.Errorf("load project config: %w", err)
	}

	registry := skill.NewRegistry(proj.SkillsDir)
	skills := registry.LoadAll()
	if len(skills) == 0 {
		fmt.Printf("no skills found in %s\n", proj.SkillsDir)
		return nil
	}

	for _, sk := range skills {
		fmt.Printf("%-20s %s\n", sk.ID, sk.Description)
		if len(sk.Keywords) > 0 {
			fmt.Printf("%-20s keywords: %s\n", "", strings.Join(sk.Keywords, ", "))
		}
	}
	return nil
}

func cmdStatus() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	running, pid := service.IsRunning(cfg)
	if running {
		fmt.Printf("sidekick: running (PID %d)\n", pid)
		fmt.Printf("Address: %s\n", cfg.Address())
	} else {
		fmt.Println("sidekick: stopped")
	}
	return nil
}

func cmdStop() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	running, pid := service.IsRunning(cfg)
	if !running {
		fmt.Println("sidekick is not running")
		return nil
	}

	fmt.Printf("Stopping sidekick (PID %d)...\n", pid)
	if err := service.StopRunning(cfg); err != nil {
		return err
	}

	fmt.Println("sidekick stopped")
	return nil
}
