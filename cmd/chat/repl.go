package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"
	"github.com/promptcraft/promptcraft-chat/internal/models"
	"github.com/promptcraft/promptcraft-chat/internal/session"
)

// controller is the part of session.Controller the REPL drives.
type controller interface {
	StartConversation(ctx context.Context, prompt string) (models.Conversation, error)
	RefreshConversations(ctx context.Context) ([]models.ConversationSummary, error)
	SelectConversation(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, id string) (session.DeleteResult, error)
	SendMessage(ctx context.Context, text, apiKey string) error
	ToggleFeedback(ctx context.Context, messageID string, kind models.FeedbackKind) error
	RefreshPrompts(ctx context.Context) error
	SavePrompt(ctx context.Context, name, content string) (models.Prompt, error)
	DeletePrompt(ctx context.Context, id string) error
	Prompts() []models.Prompt
	Active() (models.Conversation, bool)
}

type repl struct {
	ctrl     controller
	out      io.Writer
	apiKey   string
	commands []command

	logger *slog.Logger
}

type command struct {
	name  string
	args  string
	help  string
	run   func(r *repl, ctx context.Context, args string) error
	quits bool
}

var errQuit = errors.New("quit")

func commandTable() []command {
	return []command{
		{name: "/help", help: "show this help", run: (*repl).help},
		{name: "/new", args: "<prompt>", help: "start a conversation with a prompt name, id or text", run: (*repl).newConversation},
		{name: "/list", help: "list conversations", run: (*repl).list},
		{name: "/open", args: "<id>", help: "open a conversation", run: (*repl).open},
		{name: "/delete", args: "<id>", help: "delete a conversation", run: (*repl).deleteConversation},
		{name: "/like", args: "<message id>", help: "toggle like on a reply", run: (*repl).like},
		{name: "/dislike", args: "<message id>", help: "toggle dislike on a reply", run: (*repl).dislike},
		{name: "/prompts", help: "list prompts", run: (*repl).prompts},
		{name: "/save", args: "<name> | <content>", help: "save a custom prompt", run: (*repl).savePrompt},
		{name: "/rmprompt", args: "<id>", help: "delete a custom prompt", run: (*repl).deletePrompt},
		{name: "/key", args: "<api key>", help: "set the API key sent with messages", run: (*repl).setKey},
		{name: "/quit", help: "exit", quits: true},
	}
}

func newREPL(ctrl controller, out io.Writer, apiKey string, logger *slog.Logger) *repl {
	return &repl{
		ctrl:     ctrl,
		out:      out,
		apiKey:   apiKey,
		commands: commandTable(),
		logger:   logger.With(slog.String("module", "repl")),
	}
}

func (r *repl) loop(ctx context.Context, line *liner.State) error {
	for {
		input, err := line.Prompt(r.promptLabel())
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		if err := r.handle(ctx, input); errors.Is(err, errQuit) {
			return nil
		}
	}
}

func (r *repl) promptLabel() string {
	if conv, ok := r.ctrl.Active(); ok {
		return fmt.Sprintf("[%s]> ", conv.ID)
	}
	return "> "
}

// handle runs one line of input. Plain text is sent to the active conversation. Errors are already shown
// by the controller; handle returns them so callers can tell what happened, and errQuit on /quit.
func (r *repl) handle(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return r.send(ctx, input)
	}

	name, args, _ := strings.Cut(input, " ")
	for _, cmd := range r.commands {
		if cmd.name != name {
			continue
		}
		if cmd.quits {
			return errQuit
		}
		err := cmd.run(r, ctx, strings.TrimSpace(args))
		if err != nil {
			r.logger.Debug("Command failed", slog.String("command", name), slog.String("err", err.Error()))
		}
		return err
	}

	fmt.Fprintf(r.out, "Unknown command %s, type /help.\n", name)
	return nil
}

// send streams a message. Ctrl-C while the reply streams cancels it without leaving the REPL.
func (r *repl) send(ctx context.Context, text string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	return r.ctrl.SendMessage(ctx, text, r.apiKey)
}

func (r *repl) help(context.Context, string) error {
	for _, cmd := range r.commands {
		fmt.Fprintf(r.out, "  %-28s %s\n", strings.TrimSpace(cmd.name+" "+cmd.args), cmd.help)
	}
	fmt.Fprintln(r.out, "  Anything else is sent as a message.")
	return nil
}

func (r *repl) newConversation(ctx context.Context, args string) error {
	_, err := r.ctrl.StartConversation(ctx, args)
	return err
}

func (r *repl) list(ctx context.Context, _ string) error {
	convs, err := r.ctrl.RefreshConversations(ctx)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Fprintln(r.out, "No conversations yet.")
		return nil
	}
	active, _ := r.ctrl.Active()
	for _, c := range convs {
		marker := " "
		if c.ID == active.ID {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %-6s %s  %s\n", marker, c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncate(c.SystemPrompt, 60))
	}
	return nil
}

func (r *repl) open(ctx context.Context, args string) error {
	if args == "" {
		fmt.Fprintln(r.out, "Usage: /open <id>")
		return nil
	}
	return r.ctrl.SelectConversation(ctx, args)
}

func (r *repl) deleteConversation(ctx context.Context, args string) error {
	if args == "" {
		fmt.Fprintln(r.out, "Usage: /delete <id>")
		return nil
	}
	res, err := r.ctrl.DeleteConversation(ctx, args)
	if err != nil {
		return err
	}
	if res.Deleted {
		fmt.Fprintf(r.out, "Conversation %s deleted.\n", args)
	}
	return nil
}

func (r *repl) like(ctx context.Context, args string) error {
	return r.ctrl.ToggleFeedback(ctx, args, models.FeedbackLike)
}

func (r *repl) dislike(ctx context.Context, args string) error {
	return r.ctrl.ToggleFeedback(ctx, args, models.FeedbackDislike)
}

func (r *repl) prompts(ctx context.Context, _ string) error {
	// A failed refresh is noticed; the built-in prompts are still listed.
	err := r.ctrl.RefreshPrompts(ctx)
	for _, p := range r.ctrl.Prompts() {
		id := "built-in"
		if !p.BuiltIn() {
			id = "#" + p.ID.String()
		}
		fmt.Fprintf(r.out, "  %-10s %-28s %s\n", id, p.Name, truncate(p.Content, 50))
	}
	return err
}

func (r *repl) savePrompt(ctx context.Context, args string) error {
	name, content, _ := strings.Cut(args, "|")
	_, err := r.ctrl.SavePrompt(ctx, strings.TrimSpace(name), strings.TrimSpace(content))
	return err
}

func (r *repl) deletePrompt(ctx context.Context, args string) error {
	if args == "" {
		fmt.Fprintln(r.out, "Usage: /rmprompt <id>")
		return nil
	}
	return r.ctrl.DeletePrompt(ctx, args)
}

func (r *repl) setKey(_ context.Context, args string) error {
	r.apiKey = args
	if args == "" {
		fmt.Fprintln(r.out, "API key cleared.")
		return nil
	}
	fmt.Fprintln(r.out, "API key set.")
	return nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
