package main

import (
	"context"
	"io"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/require"

	"github.com/and161185/tim-admin/internal/client/idle"
	"github.com/and161185/tim-admin/internal/client/notify"
)

type step struct {
	line string
	err  error
	do   func()
}

// scripted answers prompts in order and returns io.EOF when exhausted.
type scripted struct {
	steps   []step
	prompts []string
	history []string
}

func (s *scripted) next(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.steps) == 0 {
		return "", io.EOF
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.do != nil {
		st.do()
	}
	return st.line, st.err
}

func (s *scripted) Prompt(p string) (string, error)         { return s.next(p) }
func (s *scripted) PasswordPrompt(p string) (string, error) { return s.next(p) }
func (s *scripted) AppendHistory(item string)               { s.history = append(s.history, item) }

func lines(in ...string) []step {
	out := make([]step, 0, len(in))
	for _, l := range in {
		out = append(out, step{line: l})
	}
	return out
}

func (f *fixture) shell(t *testing.T, steps []step) *scripted {
	t.Helper()
	f.c.apiURL = f.srv.URL
	require.NoError(t, f.c.ensureApp())
	in := &scripted{steps: steps}
	require.NoError(t, (&shell{c: f.c, in: in}).run(context.Background()))
	return in
}

func TestShell_ReplaysCommandAfterLogin(t *testing.T) {
	f := newFixture(t)

	steps := []step{{err: liner.ErrPromptAborted}} // skip the initial login prompt
	steps = append(steps, lines(
		"services list",
		"admin", "secret1", "n",
		"exit",
	)...)
	in := f.shell(t, steps)

	require.Contains(t, f.out.String(), "Web")
	require.Equal(t, []string{"Please log in to continue", "Login successful"}, f.rec.Messages())
	require.Equal(t, "refresh-1", f.store.Refresh())
	require.False(t, f.store.RememberMe())
	require.Contains(t, in.prompts, "admin@tim> ")
	require.False(t, f.c.inShell.Load())
}

func TestShell_WarnsAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)

	f.shell(t, lines(
		"admin", "bad", "n",
		"admin", "bad", "n",
		"admin", "bad", "y",
	))

	warnings := 0
	for _, n := range f.rec.Notices() {
		if n.Level == notify.LevelWarn {
			require.Equal(t, MsgManyFailures, n.Message)
			warnings++
		}
	}
	require.Equal(t, 1, warnings)
	require.Empty(t, f.store.Access())
}

func TestShell_IdleLogoutReturnsToLogin(t *testing.T) {
	f := newFixture(t)

	steps := lines("admin", "secret1", "y")
	steps = append(steps, step{line: "whoami", do: func() {
		require.Equal(t, 2, f.sched.Pending())
		f.sched.Advance(idle.DefaultThreshold)
	}})
	in := f.shell(t, steps)

	require.Empty(t, f.store.Access())
	require.Contains(t, f.rec.Messages(), idle.MsgWarning)
	require.Contains(t, f.rec.Messages(), idle.MsgExpired)
	require.Equal(t, "username: ", in.prompts[len(in.prompts)-1])
}

func TestShell_LoginCommandPrompts(t *testing.T) {
	f := newFixture(t)

	in := f.shell(t, append(
		lines("admin", "secret1", "n", "login", "admin", "secret1", "n"),
		step{line: "quit"},
	))
	require.Equal(t, []string{"Login successful", "Login successful"}, f.rec.Messages())
	require.Contains(t, in.history, "login")
}

func TestShell_HistorySkipsCredentials(t *testing.T) {
	f := newFixture(t)

	in := f.shell(t, lines("admin", "secret1", "n", "services list", "exit"))
	require.Equal(t, []string{"services list", "exit"}, in.history)
}
