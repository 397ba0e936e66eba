package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
	"github.com/and161185/tim-admin/internal/service"
)

// ContentService is CRUD over one section, see service.Content.
type ContentService[T any] interface {
	Section() service.Section
	List(ctx context.Context, q model.ListQuery) (model.Page[T], error)
	Get(ctx context.Context, id int64) (T, error)
	Create(ctx context.Context, f model.Form) (T, error)
	Update(ctx context.Context, id int64, f model.Form) (T, error)
	Delete(ctx context.Context, id int64) error
}

// mountContent registers the collection routes of one section under path.
func mountContent[T any](r chi.Router, path string, svc ContentService[T], h *handlers) {
	if svc == nil {
		return
	}
	c := &contentHandlers[T]{svc: svc, h: h}
	r.Route(path, func(r chi.Router) {
		r.Get("/", c.list)
		r.Post("/", c.create)
		r.Get("/{id}", c.get)
		r.Put("/{id}", c.update)
		r.Patch("/{id}", c.update)
		r.Delete("/{id}", c.delete)
	})
}

type contentHandlers[T any] struct {
	svc ContentService[T]
	h   *handlers
}

func (c *contentHandlers[T]) list(w http.ResponseWriter, r *http.Request) {
	q := model.ListQuery{Search: r.URL.Query().Get("search")}
	var err error
	if q.Page, err = queryInt(r, "page"); err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	page, err := c.svc.List(r.Context(), q)
	if err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (c *contentHandlers[T]) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	item, err := c.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (c *contentHandlers[T]) create(w http.ResponseWriter, r *http.Request) {
	form, cleanup, err := parseForm(w, r, c.h.maxUpload, c.svc.Section().FileField)
	if err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	defer cleanup()

	item, err := c.svc.Create(r.Context(), form)
	if err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (c *contentHandlers[T]) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	form, cleanup, err := parseForm(w, r, c.h.maxUpload, c.svc.Section().FileField)
	if err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	defer cleanup()

	item, err := c.svc.Update(r.Context(), id, form)
	if err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (c *contentHandlers[T]) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	if err := c.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, c.h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", errs.ErrValidation)
	}
	return id, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errs.ErrValidation, key)
	}
	return n, nil
}

// parseForm accepts multipart, urlencoded and JSON bodies. A file part is
// only accepted under fileField. cleanup releases the multipart temp files.
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64, fileField string) (model.Form, func(), error) {
	nop := func() {}
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return model.Form{}, nop, fmt.Errorf("%w: missing or invalid content type", errs.ErrValidation)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	switch ct {
	case "multipart/form-data":
		return parseMultipart(r, maxBytes, fileField)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return model.Form{}, nop, bodyError(err)
		}
		return model.Form{Values: first(r.PostForm)}, nop, nil
	case "application/json":
		f, err := parseJSONForm(r)
		return f, nop, err
	default:
		return model.Form{}, nop, fmt.Errorf("%w: unsupported content type %q", errs.ErrValidation, ct)
	}
}

func parseMultipart(r *http.Request, maxBytes int64, fileField string) (model.Form, func(), error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return model.Form{}, func() {}, bodyError(err)
	}
	mf := r.MultipartForm
	cleanup := func() { _ = mf.RemoveAll() }

	form := model.Form{Values: first(mf.Value)}
	for field, headers := range mf.File {
		if field != fileField || fileField == "" {
			cleanup()
			return model.Form{}, func() {}, fmt.Errorf("%w: unexpected file field %q", errs.ErrValidation, field)
		}
		if len(headers) == 0 {
			continue
		}
		fh := headers[0]
		file, err := fh.Open()
		if err != nil {
			cleanup()
			return model.Form{}, func() {}, fmt.Errorf("open upload: %w", err)
		}
		form.File = &model.Upload{
			Field:       field,
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        file,
		}
		cleanup = func() {
			_ = file.Close()
			_ = mf.RemoveAll()
		}
	}
	return form, cleanup, nil
}

// parseJSONForm flattens a JSON object into form values. Booleans and
// numbers are rendered the way a form would submit them.
func parseJSONForm(r *http.Request) (model.Form, error) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return model.Form{}, bodyError(err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			values[k] = v
		case bool:
			values[k] = strconv.FormatBool(v)
		case float64:
			values[k] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return model.Form{}, fmt.Errorf("%w: field %q must be a scalar", errs.ErrValidation, k)
		}
	}
	return model.Form{Values: values}, nil
}

func first(m map[string][]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: malformed request body", errs.ErrValidation)
}
