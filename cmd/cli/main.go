package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/termpilot/engine/internal/application"
	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/service"
	"github.com/termpilot/engine/internal/domain/valueobject"
	"github.com/termpilot/engine/internal/infrastructure/config"
	"github.com/termpilot/engine/internal/infrastructure/logger"
)

const (
	cliVersion = "0.2.0"
	cliName    = "termpilot"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   cliName + " [message]",
		Short: "termpilot — AI terminal automation agent",
		Long:  "termpilot CLI — drives a local shell from natural-language tasks, asking before anything risky.",
		Args:  cobra.ArbitraryArgs,
		RunE:  runInteractive,
	}

	rootCmd.Flags().StringP("model", "m", "", "override the configured default model")
	rootCmd.Flags().BoolP("yolo", "y", false, "skip tool confirmation prompts")
	rootCmd.Flags().StringP("workspace", "w", "", "working directory")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "check the local environment",
		RunE:  runDoctor,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runInteractive drives a single terminal session from stdin, one task per
// line, replaying each reply into the next turn's HistoryMessages so the
// model keeps the thread without a persistent AgentRun across turns.
func runInteractive(cmd *cobra.Command, args []string) error {
	log, err := logger.NewLogger(logger.Config{
		Level:      "error",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if m, _ := cmd.Flags().GetString("model"); m != "" {
		cfg.Agent.DefaultModel = m
	}
	workspace, _ := os.Getwd()
	if w, _ := cmd.Flags().GetString("workspace"); w != "" {
		workspace = w
	}
	cfg.Agent.Workspace = workspace
	yolo, _ := cmd.Flags().GetBool("yolo")

	fmt.Print("\033[90minitializing...\033[0m")
	app, err := application.NewAppCLI(cfg, log)
	if err != nil {
		fmt.Print("\r\033[2K")
		return fmt.Errorf("init failed: %w", err)
	}
	if yolo {
		app.SetApprovalFunc(nil) // nil resets to auto-approve-everything
	} else {
		app.SetApprovalFunc(confirmOnTerminal)
	}
	fmt.Print("\r\033[2K")

	fmt.Printf("termpilot ready — %d tools, model %s, workspace %s\n",
		app.ToolCount(), cfg.Agent.DefaultModel, workspace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	agentCtx := entity.AgentContext{
		SystemInfo: entity.SystemInfo{OS: runtime.GOOS, Shell: os.Getenv("SHELL")},
	}
	agentCfg := entity.DefaultAgentConfig()
	if cfg.Agent.DefaultModel != "" {
		agentCfg.Model = valueobject.NewModelConfig(
			cfg.Agent.DefaultProvider, cfg.Agent.DefaultModel,
			agentCfg.Model.MaxTokens(), agentCfg.Model.Temperature(), agentCfg.Model.TopP(), agentCfg.Model.Stream(),
		)
	}

	if initPrompt := strings.Join(args, " "); initPrompt != "" {
		agentCtx = runTask(ctx, app, initPrompt, agentCtx, agentCfg)
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		agentCtx = runTask(ctx, app, line, agentCtx, agentCfg)
		fmt.Print("> ")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return app.Stop(shutdownCtx)
}

// runTask executes one task to completion, streaming tool activity to
// stdout, and returns an updated AgentContext carrying this turn's
// messages forward as history for the next one.
func runTask(ctx context.Context, app *application.App, task string, agentCtx entity.AgentContext, cfg entity.AgentConfig) entity.AgentContext {
	run, err := app.NewRun(ctx, task, "local", agentCtx, cfg)
	if err != nil {
		fmt.Printf("\033[91mcould not start run: %v\033[0m\n", err)
		return agentCtx
	}
	// Seed the run with the earlier turns so the model sees the thread.
	run.AgentRun.Messages = append(append([]entity.Message(nil), agentCtx.HistoryMessages...), run.AgentRun.Messages...)

	result, eventCh := run.Execute(ctx)
	for event := range eventCh {
		printEvent(event)
	}
	if result != nil && result.FinalContent != "" {
		fmt.Printf("\n%s\n", result.FinalContent)
	}

	history := append([]entity.Message(nil), run.AgentRun.Messages...)
	agentCtx.HistoryMessages = history
	if result == nil {
		agentCtx = agentCtx.WithPreviousFailedAgent(task)
	}
	return agentCtx
}

func printEvent(event service.SchedulerEvent) {
	switch event.Type {
	case service.EventTextDelta:
		fmt.Print(event.Content)
	case service.EventToolCall:
		if event.ToolCall != nil {
			fmt.Printf("\n\033[36m> %s(%s)\033[0m\n", event.ToolCall.Name, event.ToolCall.Arguments)
		}
	case service.EventToolResult:
		if event.ToolCall != nil {
			fmt.Printf("%s\n", event.ToolCall.Display)
		}
	case service.EventError:
		fmt.Printf("\n\033[91m%s\033[0m\n", event.Error)
	}
}

func confirmOnTerminal(ctx context.Context, toolName string, risk entity.RiskLevel, hint string) (bool, error) {
	fmt.Printf("\n\033[93m? %s (%s)\033[0m — %s\nallow? [y/N] ", toolName, risk, hint)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("termpilot doctor v%s\n\n", cliVersion)

	checks := []struct {
		name  string
		check func() (string, bool)
	}{
		{"config file", checkConfig},
		{"go toolchain", checkGo},
	}

	allOK := true
	for _, c := range checks {
		val, ok := c.check()
		icon := "\033[92mOK\033[0m"
		if !ok {
			icon = "\033[91mFAIL\033[0m"
			allOK = false
		}
		fmt.Printf("  [%s] %s: %s\n", icon, c.name, val)
	}

	fmt.Println()
	if allOK {
		fmt.Println("all checks passed")
	} else {
		fmt.Println("some checks failed, see above")
	}
	return nil
}

func checkConfig() (string, bool) {
	path := os.Getenv("HOME") + "/.termpilot/config.yaml"
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return "not found at ~/.termpilot/config.yaml (defaults will be used)", false
}

func checkGo() (string, bool) {
	for _, p := range []string{"/usr/local/go/bin/go", "/usr/bin/go", "/usr/lib/go/bin/go"} {
		if _, err := os.Stat(p); err == nil {
			return "installed", true
		}
	}
	return "not found", false
}
