package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/promptcraft/promptcraft-chat/internal/client"
	"github.com/promptcraft/promptcraft-chat/internal/markup"
	"github.com/promptcraft/promptcraft-chat/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const welcome = "Welcome to PromptCraft Chat! Start a conversation with /new <prompt>, or type /help."

var rootCmd = &cobra.Command{
	Use:   "promptcraft-chat",
	Short: "Chat with a PromptCraft server from the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
	SilenceUsage: true,
}

func main() {
	if err := initCommands(rootCmd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func initCommands(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("base-url", "http://localhost:8000", "chat server URL")
	flags.String("api-key", "", "LLM API key sent with every message")
	flags.String("style", "auto", "markdown style: auto, dark, light, notty, ...")
	flags.Int("width", 100, "word wrap width of rendered replies")
	flags.Bool("exclusive-feedback", false, "liking a message clears its dislike and vice versa")
	flags.Bool("keep-partial", false, "keep partially received replies when a stream fails")
	flags.Int("max-event-size", client.DefaultMaxEventSize, "largest streamed event accepted, in bytes")
	flags.Bool("debug", false, "log debug output to stderr")

	viper.SetEnvPrefix("promptcraft")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return viper.BindPFlags(flags)
}

func run(ctx context.Context) error {
	level := slog.LevelWarn
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	defaults, err := session.DefaultPrompts()
	if err != nil {
		return err
	}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	history := historyPath()
	loadHistory(line, history)
	defer func() {
		saveHistory(line, history)
		line.Close()
	}()

	interactive := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	var renderer markup.Renderer = markup.Plain{}
	if interactive {
		renderer = markup.NewTerminal(viper.GetString("style"), viper.GetInt("width"))
	}

	surface := newTerminalSurface(os.Stdout, interactive)
	ctrl := session.NewController(
		client.New(viper.GetString("base-url"), logger,
			client.WithStreamMaxEventSize(viper.GetInt("max-event-size"))),
		surface,
		lineConfirmer{prompt: line.Prompt},
		renderer,
		session.WithLogger(logger),
		session.WithPrompts(defaults),
		session.WithExclusiveFeedback(viper.GetBool("exclusive-feedback")),
		session.WithKeepPartial(viper.GetBool("keep-partial")),
	)

	surface.Notice(welcome)
	// Failures are already shown as notices; the session works without the lists.
	_ = ctrl.Bootstrap(ctx)

	r := newREPL(ctrl, os.Stdout, viper.GetString("api-key"), logger)
	return r.loop(ctx, line)
}

func historyPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "promptcraft", "chat_history")
}

func loadHistory(line *liner.State, path string) {
	if f, err := os.Open(path); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
}

func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = line.WriteHistory(f)
}
