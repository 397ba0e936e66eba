// Command tim-admin is the operator CLI of the TIM admin back office.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/tim-admin/internal/client/guard"
	"github.com/and161185/tim-admin/internal/errs"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newCLI(os.Stdout, os.Stderr)
	err := c.root().ExecuteContext(ctx)
	c.sync()
	if err != nil {
		os.Exit(fail(os.Stderr, err))
	}
}

// fail prints err and returns the process exit code.
func fail(w io.Writer, err error) int {
	var re *guard.RedirectError
	switch {
	case errors.As(err, &re):
		fmt.Fprintf(w, "Login required for %s: run `tim-admin login -u <username>`\n", re.From)
		return 3
	case errors.Is(err, errs.ErrSessionExpired):
		fmt.Fprintln(w, "Session expired: run `tim-admin login -u <username>`")
		return 3
	case errors.Is(err, errs.ErrValidation):
		fmt.Fprintln(w, "Error:", err)
		return 2
	default:
		fmt.Fprintln(w, "Error:", err)
		return 1
	}
}
