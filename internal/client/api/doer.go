package api

import (
	"context"
	"io"
	"net/http"

	"github.com/and161185/tim-admin/internal/client/gateway"
)

// Doer sends authenticated requests. *gateway.Gateway implements it.
type Doer interface {
	NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error)
	Do(req *http.Request) (*http.Response, error)
	JSON(ctx context.Context, method, path string, in, out any) error
}

var _ Doer = (*gateway.Gateway)(nil)
