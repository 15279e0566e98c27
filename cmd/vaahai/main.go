// VaahAI command line entry point.
//
// Usage:
//
//	vaahai chat "review this code"          # run an offline group chat
//	vaahai chat --config config.yaml "..."  # with a config file
//	vaahai version                          # show version information
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vaahai/vaahai/config"
	"github.com/vaahai/vaahai/groupchat"
	"github.com/vaahai/vaahai/internal/metrics"
	"github.com/vaahai/vaahai/internal/telemetry"
	"github.com/vaahai/vaahai/testutil"
	"github.com/vaahai/vaahai/types"
)

// Version information injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		runChat(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	chatType := fs.String("type", "", "Chat type: round_robin, selector, broadcast, custom")
	offline := fs.Bool("offline", false, "Force the deterministic offline backend")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "chat requires an initial message")
		os.Exit(1)
	}
	initial := fs.Arg(0)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.WithValidator(func(c *config.Config) error { return c.Validate() }).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("failed to initialize telemetry", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	collector := metrics.NewCollector(cfg.Bus.MetricsNamespace, nil, logger)

	chatCfg := chatConfigFromFile(cfg.Chat, logger)
	if *chatType != "" {
		chatCfg.ChatType = groupchat.ParseChatType(*chatType, logger)
	}
	if *offline {
		chatCfg.Offline = true
	}

	// Without a configured model backend the demo agents echo
	// deterministically.
	agents := []types.ChatAgent{
		testutil.NewMockAgent("reviewer"),
		testutil.NewMockAgent("auditor"),
	}

	manager := groupchat.NewGroupChatManager(agents, chatCfg, logger, collector)
	result, err := manager.StartChat(ctx, initial)
	if err != nil {
		logger.Fatal("chat failed", zap.Error(err))
	}

	for _, rec := range result.Messages {
		fmt.Printf("[%s] %s\n", rec.Sender, rec.Content)
	}
	fmt.Printf("\nResult: %s\n", result.Result)
}

// chatConfigFromFile maps the file configuration onto a groupchat Config.
func chatConfigFromFile(cc config.ChatConfig, logger *zap.Logger) groupchat.Config {
	cfg := groupchat.DefaultConfig()
	cfg.ChatType = groupchat.ParseChatType(cc.ChatType, logger)
	cfg.HumanInputMode = groupchat.ParseHumanInputMode(cc.HumanInputMode, logger)
	if cc.MaxRounds > 0 {
		cfg.MaxRounds = cc.MaxRounds
	}
	cfg.AllowRepeatSpeaker = cc.AllowRepeatSpeaker
	if cc.SpeakerSelectionMethod != "" {
		cfg.SpeakerSelectionMethod = cc.SpeakerSelectionMethod
	}
	cfg.SendIntroductions = cc.SendIntroductions
	cfg.Offline = cc.Offline
	cfg.MaxMessages = cc.MaxMessages
	cfg.CompletionIndicators = cc.CompletionIndicators
	cfg.AgentCallTimeout = cc.AgentCallTimeout
	return cfg
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	opts := []zap.Option{}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func printVersion() {
	fmt.Printf("VaahAI %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`VaahAI - multi-agent orchestration framework

Usage:
  vaahai chat [flags] <initial message>   run a group chat
  vaahai version                          show version information
  vaahai help                             show this help

Chat flags:
  --config <path>   config file (YAML)
  --type <type>     chat type: round_robin, selector, broadcast, custom
  --offline         force the deterministic offline backend`)
}
