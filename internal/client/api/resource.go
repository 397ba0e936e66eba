package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/and161185/tim-admin/internal/model"
)

// Endpoint describes how a resource is addressed and encoded.
type Endpoint struct {
	Path string
	// Multipart resources always send multipart/form-data, others send
	// JSON unless the form carries a file.
	Multipart bool
	// BoolFields are JSON-encoded as booleans.
	BoolFields []string
}

// Resource is CRUD over one backend collection.
type Resource[T any] struct {
	d  Doer
	ep Endpoint
}

func NewResource[T any](d Doer, ep Endpoint) *Resource[T] {
	return &Resource[T]{d: d, ep: ep}
}

// Path returns the collection path.
func (r *Resource[T]) Path() string { return r.ep.Path }

// List returns every record.
func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	p, err := r.Paginate(ctx, model.ListQuery{})
	if err != nil {
		return nil, err
	}
	return p.Items, nil
}

// Paginate returns one page filtered by q.Search.
func (r *Resource[T]) Paginate(ctx context.Context, q model.ListQuery) (model.Page[T], error) {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	path := r.ep.Path
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	body, err := r.send(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return model.Page[T]{}, err
	}
	return normalizePage[T](body, q)
}

func (r *Resource[T]) Get(ctx context.Context, id int64) (T, error) {
	body, err := r.send(ctx, http.MethodGet, r.item(id), nil, "")
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeObject[T](body)
}

func (r *Resource[T]) Create(ctx context.Context, f model.Form) (T, error) {
	return r.write(ctx, http.MethodPost, r.ep.Path, f)
}

func (r *Resource[T]) Update(ctx context.Context, id int64, f model.Form) (T, error) {
	return r.write(ctx, http.MethodPut, r.item(id), f)
}

func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	_, err := r.send(ctx, http.MethodDelete, r.item(id), nil, "")
	return err
}

func (r *Resource[T]) item(id int64) string {
	return r.ep.Path + "/" + strconv.FormatInt(id, 10)
}

func (r *Resource[T]) write(ctx context.Context, method, path string, f model.Form) (T, error) {
	var zero T

	var (
		body        io.Reader
		contentType string
	)
	if r.ep.Multipart || f.File != nil {
		buf, ct, err := encodeMultipart(f)
		if err != nil {
			return zero, err
		}
		body, contentType = buf, ct
	} else {
		b, err := encodeJSON(f, r.ep.BoolFields)
		if err != nil {
			return zero, err
		}
		body, contentType = bytes.NewReader(b), "application/json"
	}

	resp, err := r.send(ctx, method, path, body, contentType)
	if err != nil {
		return zero, err
	}
	if len(bytes.TrimSpace(resp)) == 0 {
		return zero, nil
	}
	return decodeObject[T](resp)
}

func (r *Resource[T]) send(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := r.d.NewRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := r.d.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	return b, nil
}
