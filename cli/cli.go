// Package cli is the terminal front end: a line-oriented REPL and a one-shot
// mode. Both stream answer text as it arrives and re-render the completed
// answer as styled Markdown when enabled.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"scout/core/orchestrator"
	"scout/providers/ai"
	"scout/session"
	"scout/stream"
)

const prompt = "> "

// Runner executes one research turn. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, history []ai.Message, userMessage string, sink orchestrator.Sink) (*orchestrator.Result, error)
}

// CLI drives turns from a terminal.
type CLI struct {
	sessions *session.Store
	runner   Runner
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger

	renderMarkdown bool
	renderer       *glamour.TermRenderer
}

// Option configures a CLI.
type Option func(*CLI)

// WithInput overrides the input reader. Default os.Stdin.
func WithInput(in io.Reader) Option {
	return func(c *CLI) { c.in = in }
}

// WithOutput overrides the output writer. Default os.Stdout.
func WithOutput(out io.Writer) Option {
	return func(c *CLI) { c.out = out }
}

// WithMarkdownRendering toggles the post-stream glamour re-render. Enable it
// only when the output is a terminal.
func WithMarkdownRendering(enabled bool) Option {
	return func(c *CLI) { c.renderMarkdown = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CLI) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a CLI over a session store and a turn runner.
func New(sessions *session.Store, runner Runner, opts ...Option) *CLI {
	c := &CLI{
		sessions: sessions,
		runner:   runner,
		in:       os.Stdin,
		out:      os.Stdout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunOnce answers a single question and returns.
func (c *CLI) RunOnce(ctx context.Context, question string) error {
	_, err := c.turn(ctx, "", question)
	return err
}

// REPL reads questions line by line until EOF or an exit command,
// carrying one session across turns.
func (c *CLI) REPL(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)
	var sessionID string

	fmt.Fprint(c.out, prompt)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(c.out, prompt)
			continue
		case "exit", "quit":
			return nil
		}

		next, err := c.turn(ctx, sessionID, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		} else {
			sessionID = next
		}
		fmt.Fprint(c.out, prompt)
	}
	return scanner.Err()
}

// turn runs one research turn through a stream publisher, printing text
// deltas as they arrive. It returns the session id for the followup.
func (c *CLI) turn(ctx context.Context, sessionID, message string) (string, error) {
	sessionID, sess := c.sessions.LoadOrCreate(sessionID)
	if !c.sessions.AcquireWriter(sessionID) {
		return sessionID, fmt.Errorf("session %s is busy", sessionID)
	}
	defer c.sessions.ReleaseWriter(sessionID)

	publisher := stream.NewPublisher(0)
	answers := make(chan string, 1)

	go func() {
		sink := func(delta string) {
			_ = publisher.Publish(ctx, stream.Text(delta))
		}
		result, err := c.runner.Run(ctx, sess.History(), message, sink)
		if result != nil {
			sess.Append(result.Turns...)
		}
		if err != nil {
			_ = publisher.Publish(ctx, stream.Error(err.Error()))
			return
		}
		answers <- result.Answer
		_ = publisher.Publish(ctx, stream.Done(sessionID))
	}()

	for {
		select {
		case event, open := <-publisher.Events():
			if !open {
				return sessionID, nil
			}
			switch event.Type {
			case stream.EventText:
				fmt.Fprint(c.out, event.Content)
			case stream.EventDone:
				fmt.Fprintln(c.out)
				c.renderAnswer(<-answers)
			case stream.EventError:
				fmt.Fprintln(c.out)
				return sessionID, errors.New(event.Message)
			}
		case <-ctx.Done():
			// Interrupt mid-turn; the producer unwinds on the same context.
			fmt.Fprintln(c.out)
			return sessionID, ctx.Err()
		}
	}
}

// renderAnswer re-prints the completed answer as styled Markdown. Rendering
// failures keep the already-streamed plain text, so they are only logged.
func (c *CLI) renderAnswer(answer string) {
	if !c.renderMarkdown || answer == "" {
		return
	}

	if c.renderer == nil {
		renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			c.logger.Warn("markdown renderer unavailable", "error", err)
			c.renderMarkdown = false
			return
		}
		c.renderer = renderer
	}

	rendered, err := c.renderer.Render(answer)
	if err != nil {
		c.logger.Warn("markdown rendering failed", "error", err)
		return
	}
	fmt.Fprint(c.out, rendered)
}
