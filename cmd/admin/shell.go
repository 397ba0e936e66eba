package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/and161185/tim-admin/internal/client/guard"
	"github.com/and161185/tim-admin/internal/client/idle"
	"github.com/and161185/tim-admin/internal/client/notify"
	"github.com/and161185/tim-admin/internal/client/session"
	"github.com/and161185/tim-admin/internal/client/tokenstore"
	"github.com/and161185/tim-admin/internal/model"
)

// escalateAfter consecutive failed logins show MsgManyFailures.
const escalateAfter = 3

const MsgManyFailures = "Multiple failed attempts. Please ensure your credentials are correct or contact the system administrator."

// lineReader is the part of *liner.State the shell uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	PasswordPrompt(prompt string) (string, error)
	AppendHistory(item string)
}

type shell struct {
	c        *cli
	in       lineReader
	pending  string
	failures int
}

func (c *cli) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session with idle logout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.inShell.Load() {
				return errors.New("already in the shell")
			}
			line := liner.NewLiner()
			defer line.Close()
			line.SetCtrlCAborts(true)

			dir := c.app.Config.ConfigDir
			if dir == "" {
				dir = tokenstore.DefaultConfigDir()
			}
			history := filepath.Join(dir, "shell_history")
			if f, err := os.Open(history); err == nil {
				_, _ = line.ReadHistory(f)
				_ = f.Close()
			}
			defer func() {
				if f, err := os.OpenFile(history, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
					_, _ = line.WriteHistory(f)
					_ = f.Close()
				}
			}()

			return (&shell{c: c, in: line}).run(cmd.Context())
		},
	}
}

// run reads commands until exit. Every line counts as a key press for the
// idle monitor; gated commands that need a login are replayed after it.
func (s *shell) run(ctx context.Context) error {
	s.c.inShell.Store(true)
	defer s.c.inShell.Store(false)

	stop := s.c.app.Idle.Start()
	defer stop()

	if s.c.app.Session.State().Status != session.Authenticated {
		s.c.needLogin.Store(true)
	}
	fmt.Fprintln(s.c.out, "Type a command (e.g. `services list`), `help` or `exit`.")

	for ctx.Err() == nil {
		if s.c.needLogin.Load() {
			if !s.login(ctx) {
				return nil
			}
			continue
		}

		input, err := s.read(s.prompt())
		if err != nil {
			return quitErr(err)
		}
		if input == "" {
			continue
		}
		switch input {
		case "exit", "quit":
			return nil
		}
		s.exec(ctx, input)
	}
	return nil
}

func (s *shell) prompt() string {
	if u := s.c.app.Session.User(); u != nil {
		return u.Username + "@tim> "
	}
	return "tim> "
}

func (s *shell) read(prompt string) (string, error) {
	input, err := s.ask(prompt)
	if input != "" {
		s.in.AppendHistory(input)
	}
	return input, err
}

// ask prompts without recording history.
func (s *shell) ask(prompt string) (string, error) {
	input, err := s.in.Prompt(prompt)
	if err != nil {
		return "", err
	}
	s.c.app.Idle.Signal(idle.KeyDown)
	return strings.TrimSpace(input), nil
}

// exec runs one command line through a fresh command tree.
func (s *shell) exec(ctx context.Context, input string) {
	args, err := splitArgs(input)
	if err != nil {
		fmt.Fprintln(s.c.errOut, "Error:", err)
		return
	}
	switch args[0] {
	case "login":
		s.pending = ""
		s.c.needLogin.Store(true)
		return
	case "shell":
		fmt.Fprintln(s.c.errOut, "Already in the shell.")
		return
	}

	root := s.c.root()
	root.SetArgs(args)
	err = root.ExecuteContext(ctx)

	var re *guard.RedirectError
	if errors.As(err, &re) {
		notify.Info(s.c.app.Notifier, "Please log in to continue")
		s.pending = input
		s.c.needLogin.Store(true)
		return
	}
	if err != nil {
		fmt.Fprintln(s.c.errOut, "Error:", err)
	}
}

// login prompts for credentials until success. It returns false when the
// operator quits.
func (s *shell) login(ctx context.Context) bool {
	username, err := s.ask("username: ")
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			// back to the command prompt without a session
			s.c.needLogin.Store(false)
			s.pending = ""
			return true
		}
		return false
	}
	if username == "" {
		return true
	}
	password, err := s.in.PasswordPrompt("password: ")
	if err != nil {
		return !errors.Is(err, io.EOF)
	}
	remember, err := s.ask("remember me? [y/N]: ")
	if err != nil {
		return !errors.Is(err, io.EOF)
	}

	err = s.c.app.Session.Login(ctx, model.Credentials{Username: username, Password: password}, isYes(remember))
	if err != nil {
		s.failures++
		if s.failures >= escalateAfter {
			notify.Warn(s.c.app.Notifier, MsgManyFailures, "")
		}
		return true
	}

	s.failures = 0
	s.c.needLogin.Store(false)
	if p := s.pending; p != "" {
		s.pending = ""
		s.exec(ctx, p)
	}
	return true
}

func quitErr(err error) error {
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

// splitArgs splits a command line on spaces, honouring single and double quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		inArg bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote, inArg = r, true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", line)
	}
	if inArg {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return args, nil
}
