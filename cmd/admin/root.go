package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/and161185/tim-admin/internal/client/app"
	"github.com/and161185/tim-admin/internal/client/guard"
	"github.com/and161185/tim-admin/internal/client/notify"
	"github.com/and161185/tim-admin/internal/config"
)

// cli is shared by every command tree built during the process, including
// the per-line trees of the interactive shell.
type cli struct {
	apiURL     string
	configPath string
	jsonOut    bool
	verbose    bool

	out    io.Writer
	errOut io.Writer
	opts   app.Options
	app    *app.App

	// inShell is set while the interactive shell runs; navigation then
	// switches the shell to its login prompt.
	inShell   atomic.Bool
	needLogin atomic.Bool
}

func newCLI(out, errOut io.Writer) *cli {
	return &cli{out: out, errOut: errOut}
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:   "tim-admin",
		Short: "Manage services, reviews, distributors, projects and translations",
		Long: `tim-admin is the command-line back office for the TIM site.

Environment Variables:
  TIM_API_BASE_URL     Backend API URL (default: http://localhost:3000)
  TIM_IDLE_THRESHOLD   Shell idle logout (default: 15m)
  TIM_LOG_LEVEL        debug, info, warn or error (default: warn)`,
		Version:       version + " (" + buildDate + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.ensureApp()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().StringVar(&c.apiURL, "api-url", "", "Backend API URL (overrides TIM_API_BASE_URL)")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Output JSON instead of tables")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Debug logging to stderr")

	root.AddCommand(c.loginCmd(), c.logoutCmd(), c.whoamiCmd(), c.passwordCmd(), c.dashboardCmd(), c.shellCmd())
	for _, cmd := range c.resourceCmds() {
		root.AddCommand(cmd)
	}
	return root
}

// ensureApp loads configuration once; flags override env and file.
func (c *cli) ensureApp() error {
	if c.app != nil {
		return nil
	}
	cfg, err := config.LoadClient(c.configPath)
	if err != nil {
		return err
	}
	if c.apiURL != "" {
		cfg.APIBaseURL = strings.TrimRight(c.apiURL, "/")
	}
	level := cfg.LogLevel
	if c.verbose {
		level = "debug"
	}
	log, err := app.NewLogger(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	opts := c.opts
	if opts.Notifier == nil {
		opts.Notifier = notify.NewConsole(c.errOut)
	}
	if opts.Navigator == nil {
		opts.Navigator = c.navigate
	}
	c.app = app.New(cfg, log, opts)
	c.app.Session.CheckAuth()
	return nil
}

// navigate is the login entry point.
func (c *cli) navigate() {
	if c.inShell.Load() {
		c.needLogin.Store(true)
		return
	}
	fmt.Fprintln(c.errOut, "Run `tim-admin login -u <username>` to sign in.")
}

func (c *cli) sync() {
	if c.app != nil {
		_ = c.app.Log.Sync()
	}
}

// protected runs fn only for an authenticated session.
func (c *cli) protected(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return c.app.Guard.Gate(cmd.Context(), location(cmd, args),
			func() { fmt.Fprintln(c.errOut, guard.LoadingMessage) },
			func(context.Context) error { return fn(cmd, args) },
		)
	}
}

// location is the command path as a route, e.g. "/services/get/4".
func location(cmd *cobra.Command, args []string) string {
	parts := strings.Fields(cmd.CommandPath())
	if len(parts) > 0 {
		parts = parts[1:]
	}
	return "/" + strings.Join(append(parts, args...), "/")
}
