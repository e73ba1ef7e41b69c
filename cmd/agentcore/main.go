// Command agentcore is the CLI entrypoint wiring config, provider,
// tool registry, and agent loop together: a thin flag-parsing shell
// around the packages that do the real work.
//
// Usage:
//
//	agentcore -model claude-sonnet-4-20250514 -dir .
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/corestack/agentcore/config"
	"github.com/corestack/agentcore/internal/agentloop"
	"github.com/corestack/agentcore/internal/filetracker"
	"github.com/corestack/agentcore/internal/history"
	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/obslog"
	"github.com/corestack/agentcore/internal/planvm"
	"github.com/corestack/agentcore/internal/toolregistry"
	"github.com/corestack/agentcore/tools"
)

func main() {
	var (
		provider    = flag.String("provider", "anthropic", "LLM provider (anthropic, openai)")
		model       = flag.String("model", "claude-sonnet-4-20250514", "model name")
		workingDir  = flag.String("dir", ".", "working directory the bash, file, and search tools operate against")
		systemFile  = flag.String("system", "", "path to a file containing the system prompt")
		maxTokens   = flag.Int("max-tokens", 4096, "max tokens per generation")
		temperature = flag.Float64("temperature", 0.7, "sampling temperature")
		delegateCap = flag.Int("delegate-depth", 3, "max nested delegate calls per turn")
		configFile  = flag.String("config", "", "path to a YAML config file overriding tool defaults (optional)")
	)
	flag.Parse()

	log := obslog.New("cmd")

	tp := obslog.InitTracing(1.0)
	defer obslog.ShutdownTracing(context.Background(), tp)

	if err := config.LoadEnvFiles(); err != nil {
		log.Warn("could not load .env files", "err", err)
	}

	cfg, err := loadConfigOrDefault(*configFile, *workingDir)
	if err != nil {
		log.Error("could not load config", "path", *configFile, "err", err)
		os.Exit(1)
	}

	client, err := buildClient(*provider, *model)
	if err != nil {
		log.Error("could not build provider client", "err", err)
		os.Exit(1)
	}

	tracker := filetracker.New()
	registry := toolregistry.New()

	if err := registerTools(registry, client, tracker, cfg, *model, *delegateCap); err != nil {
		log.Error("could not register tools", "err", err)
		os.Exit(1)
	}

	systemPrompt := "You are a careful coding assistant. Use the completion tool to finish a turn."
	if *systemFile != "" {
		data, err := os.ReadFile(*systemFile)
		if err != nil {
			log.Error("could not read system prompt file", "path", *systemFile, "err", err)
			os.Exit(1)
		}
		systemPrompt = string(data)
	}

	sessionID := uuid.NewString()
	hist, err := history.New(sessionID)
	if err != nil {
		log.Error("could not start session history", "err", err)
		os.Exit(1)
	}

	loop := agentloop.New(agentloop.Config{
		Model:               *model,
		SystemPrompt:        systemPrompt,
		MaxTokens:           *maxTokens,
		Temperature:         *temperature,
		SessionWorkingDir:   *workingDir,
		ContextWindowTokens: client.MaxContextTokens(),
	}, hist, client, registry, tracker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	runChat(ctx, loop, log)
}

// buildClient wires the requested provider as primary with the other
// supported provider as fallback when its API key is present.
func buildClient(provider, model string) (*llm.Client, error) {
	var primary, fallback llm.Provider

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")

	switch provider {
	case "openai":
		if openaiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		primary = llm.NewOpenAIProvider(openaiKey, model, 128000)
		if anthropicKey != "" {
			fallback = llm.NewAnthropicProvider(anthropicKey, model, 200000)
		}
	default:
		if anthropicKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		primary = llm.NewAnthropicProvider(anthropicKey, model, 200000)
		if openaiKey != "" {
			fallback = llm.NewOpenAIProvider(openaiKey, model, 128000)
		}
	}

	providers := []llm.Provider{primary}
	if fallback != nil {
		providers = append(providers, fallback)
	}
	return llm.NewClient(llm.NewRetryManager(llm.DefaultRetryConfig()), providers...)
}

// loadConfigOrDefault loads a YAML config file when one is given,
// otherwise builds a zero-value Config through its own defaulting
// path so the two code paths (file-backed and flag-only) exercise the
// same Validate/SetDefaults machinery. Either way, the working
// directory the user passed via -dir wins over whatever the config
// file says, since it is the one setting every tool below is keyed on.
func loadConfigOrDefault(path, workingDir string) (*config.Config, error) {
	var cfg *config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		loaded, err := config.LoadConfigFromString("")
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.Tools.Command.WorkingDirectory = workingDir
	cfg.Tools.Command.AllowedRoots = []string{workingDir}
	cfg.Tools.FileWriter.WorkingDirectory = workingDir
	cfg.Tools.SearchReplace.WorkingDirectory = workingDir
	return cfg, nil
}

// registerTools builds and registers the full tool surface: the
// gatekept bash tool, search/query/extract/file tools, the nested-LLM
// tool, the plan-script runner, and the delegate tool.
func registerTools(reg *toolregistry.Registry, client *llm.Client, tracker *filetracker.Tracker, cfg *config.Config, model string, delegateDepth int) error {
	workingDir := cfg.Tools.Command.WorkingDirectory

	bashTool, err := tools.NewCommandTool(&cfg.Tools.Command)
	if err != nil {
		return err
	}
	if err := reg.Register(bashTool); err != nil {
		return err
	}

	if err := reg.Register(tools.NewFileWriterTool(&cfg.Tools.FileWriter, tracker)); err != nil {
		return err
	}

	if err := reg.Register(tools.NewSearchReplaceTool(&cfg.Tools.SearchReplace, tracker)); err != nil {
		return err
	}

	if err := reg.Register(tools.NewSearchTool("", tracker)); err != nil {
		return err
	}
	if err := reg.Register(tools.NewListFilesTool(workingDir)); err != nil {
		return err
	}
	if err := reg.Register(tools.NewQueryTool("")); err != nil {
		return err
	}
	if err := reg.Register(tools.NewExtractTool(workingDir, tracker)); err != nil {
		return err
	}
	if err := reg.Register(tools.NewLLMTool(client, model)); err != nil {
		return err
	}

	planCfg := planvm.Config{MapConcurrency: int64(cfg.Global.Performance.MaxConcurrency)}
	if err := reg.Register(tools.NewPlanTool(reg, planCfg)); err != nil {
		return err
	}

	delegateCfg := agentloop.Config{Model: model, MaxIterations: 15, SessionWorkingDir: workingDir}
	if err := reg.Register(tools.NewDelegateTool(client, reg, tracker, delegateCfg, delegateDepth)); err != nil {
		return err
	}
	return nil
}

// runChat drives a minimal stdin/stdout REPL, one user turn at a time.
func runChat(ctx context.Context, loop *agentloop.Loop, log interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("agentcore ready. Type a message, or /quit to exit.")

	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return
		}

		result, err := loop.RunTurn(ctx, line, nil)
		if err != nil {
			log.Error("turn ended with an error", "reason", result.Reason, "err", err)
			continue
		}
		fmt.Printf("[%s after %d iterations]\n%s\n", result.Reason, result.Iterations, result.FinalAnswer)
	}
}
