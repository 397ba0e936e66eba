package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/and161185/tim-admin/internal/client/notify"
	"github.com/and161185/tim-admin/internal/model"
)

func (c *cli) loginCmd() *cobra.Command {
	var (
		username string
		password string
		remember bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if password == "" {
				p, err := readSecret(cmd.InOrStdin(), "Password: ")
				if err != nil {
					return err
				}
				password = p
			}
			return c.app.Session.Login(cmd.Context(), model.Credentials{Username: username, Password: password}, remember)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().BoolVar(&remember, "remember", false, "keep the session across restarts")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			c.app.Session.Logout()
			return nil
		},
	}
}

type whoami struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Role          string    `json:"role"`
	ExpiresAt     time.Time `json:"expiresAt"`
	RefreshDue    bool      `json:"refreshDue"`
	RememberMe    bool      `json:"rememberMe"`
	HasRefreshKey bool      `json:"hasRefreshToken"`
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and token state",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(*cobra.Command, []string) error {
			u := c.app.Session.User()
			access := c.app.Store.Access()
			w := whoami{
				ID:            u.ID,
				Username:      u.Username,
				Role:          u.Role,
				ExpiresAt:     c.app.Inspector.ExpiresAt(access),
				RefreshDue:    c.app.Inspector.ShouldRefresh(access),
				RememberMe:    c.app.Store.RememberMe(),
				HasRefreshKey: c.app.Store.Refresh() != "",
			}
			if c.jsonOut {
				return printJSON(c.out, w)
			}
			return renderTable(c.out, []string{"ID", "User", "Role", "Expires", "Refresh due", "Remembered"}, [][]string{{
				fmt.Sprint(w.ID), w.Username, w.Role, w.ExpiresAt.Local().Format(time.DateTime), yesNo(w.RefreshDue), yesNo(w.RememberMe),
			}})
		}),
	}
}

func (c *cli) passwordCmd() *cobra.Command {
	var oldPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change the password of the signed-in user",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(cmd *cobra.Command, _ []string) error {
			if err := c.app.API.Account.ChangePassword(cmd.Context(), oldPassword, newPassword); err != nil {
				return err
			}
			notify.Success(c.app.Notifier, "Password changed successfully")
			return nil
		}),
	}
	cmd.Flags().StringVar(&oldPassword, "old", "", "current password")
	cmd.Flags().StringVar(&newPassword, "new", "", "new password")
	return cmd
}

func (c *cli) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show record counts per section",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(cmd *cobra.Command, _ []string) error {
			stats, err := c.app.API.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(c.out, stats)
			}
			return renderTable(c.out, []string{"Section", "Records"}, [][]string{
				{"Services", fmt.Sprint(stats.ServicesCount)},
				{"Reviews", fmt.Sprint(stats.ReviewsCount)},
				{"Distributors", fmt.Sprint(stats.DistributorsCount)},
				{"Projects", fmt.Sprint(stats.ProjectsCount)},
				{"Translations", fmt.Sprint(stats.TranslationsCount)},
			})
		}),
	}
}

// readSecret prompts without echo on a terminal and reads a plain line otherwise.
func readSecret(in io.Reader, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)
		return line.PasswordPrompt(prompt)
	}
	s, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && s == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
