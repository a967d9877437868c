package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/woxQAQ/tokenbridge/internal/config"
	"github.com/woxQAQ/tokenbridge/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `usage: tokenbridge [flags] <command> [args]

commands:
  exports                      list the guest's invocable exports
  tokenizers                   list the loaded tokenizers
  encode <tokenizer> [text]    print the token IDs of text (stdin if omitted)
  decode <tokenizer> <id>...   print the text of the token IDs

flags:
`

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config")
	modulePath := flag.String("module", "", "Path to the tokenizer guest; overrides the config")
	special := flag.String("special", "", "Allow special tokens (true or false); tokenizer default if empty")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = strings.ToLower(*logLevel)
	}
	if *modulePath != "" {
		cfg.Wasm.ModulePath = *modulePath
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Debug("Starting tokenbridge",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	specialTokens, err := parseSpecial(*special)
	if err != nil {
		logger.Fatal("Invalid -special value", zap.Error(err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start tokenizer bridge", zap.Error(err))
	}

	runErr := run(ctx, svc, flag.Args(), specialTokens, os.Stdin, os.Stdout)

	if err := svc.Close(context.Background()); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("Command failed", zap.String("command", flag.Arg(0)), zap.Error(runErr))
		logger.Sync()
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	return cfg.Build()
}

func parseSpecial(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func run(ctx context.Context, svc *service.Service, args []string, special *bool, stdin *os.File, stdout io.Writer) error {
	cmd, args := args[0], args[1:]

	switch cmd {
	case "exports":
		for _, name := range svc.Instance().Functions() {
			fmt.Fprintln(stdout, name)
		}
		return nil

	case "tokenizers":
		for _, name := range svc.Tokenizers().Loaded() {
			fmt.Fprintln(stdout, name)
		}
		return nil

	case "encode":
		if len(args) < 1 {
			return errors.New("encode needs a tokenizer name")
		}
		text, err := textArg(args[1:], stdin)
		if err != nil {
			return err
		}
		ids, err := svc.Tokenizers().Encode(ctx, args[0], text, special)
		if err != nil {
			return err
		}
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatUint(uint64(id), 10)
		}
		fmt.Fprintln(stdout, strings.Join(parts, " "))
		return nil

	case "decode":
		if len(args) < 1 {
			return errors.New("decode needs a tokenizer name")
		}
		ids := make([]uint32, 0, len(args)-1)
		for _, arg := range args[1:] {
			id, err := strconv.ParseUint(arg, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid token id '%s': %w", arg, err)
			}
			ids = append(ids, uint32(id))
		}
		text, err := svc.Tokenizers().Decode(ctx, args[0], ids, special)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, text)
		return nil
	}

	return fmt.Errorf("unknown command '%s'", cmd)
}

// textArg joins the remaining arguments, or reads stdin when there are
// none and stdin is not a terminal.
func textArg(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if term.IsTerminal(int(stdin.Fd())) {
		return "", errors.New("no text given and stdin is a terminal")
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(b), nil
}
