package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
	"github.com/and161185/tim-admin/internal/repository"
	"github.com/and161185/tim-admin/internal/storage/images"
)

// MaxPageLimit caps the limit of one listing page.
const MaxPageLimit = 100

// Kind is how a submitted field value is parsed.
type Kind int

const (
	Text Kind = iota
	Link      // absolute http(s) URL
	Bool
)

// Field is one submitted form field; Name is also the column name.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// Section describes the form of one content collection.
type Section struct {
	Name   string
	Fields []Field
	// FileField is the multipart part carrying the image, ImageColumn where its URL is kept.
	FileField     string
	ImageColumn   string
	ImageRequired bool
}

// Content is CRUD over one section with image handling.
type Content[T any] struct {
	sec    Section
	repo   repository.ContentRepository[T]
	images images.Store
	image  func(T) string
	log    *zap.Logger
}

// NewContent constructs a section service. image returns the stored image
// URL of a record and may be nil for sections without images.
func NewContent[T any](sec Section, repo repository.ContentRepository[T], store images.Store, image func(T) string, log *zap.Logger) *Content[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Content[T]{sec: sec, repo: repo, images: store, image: image, log: log.With(zap.String("section", sec.Name))}
}

// Section returns the section description.
func (s *Content[T]) Section() Section { return s.sec }

// List normalises the query: page defaults to 1, limit to model.DefaultPageLimit
// and is capped at MaxPageLimit.
func (s *Content[T]) List(ctx context.Context, q model.ListQuery) (model.Page[T], error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = model.DefaultPageLimit
	}
	q.Limit = min(q.Limit, MaxPageLimit)
	q.Search = strings.TrimSpace(q.Search)

	items, total, err := s.repo.List(ctx, q)
	if err != nil {
		return model.Page[T]{}, err
	}
	return model.Page[T]{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: model.TotalPages(total, q.Limit),
	}, nil
}

func (s *Content[T]) Get(ctx context.Context, id int64) (T, error) {
	return s.repo.Get(ctx, id)
}

// Create stores the optional image first and removes it again if the row
// cannot be written.
func (s *Content[T]) Create(ctx context.Context, f model.Form) (T, error) {
	var zero T
	values, err := s.values(f, true)
	if err != nil {
		return zero, err
	}
	uploaded, err := s.upload(ctx, f, values)
	if err != nil {
		return zero, err
	}
	if s.sec.ImageRequired && values[s.sec.ImageColumn] == nil {
		return zero, fmt.Errorf("%w: %s is required", errs.ErrValidation, s.sec.FileField)
	}

	v, err := s.repo.Create(ctx, values)
	if err != nil {
		s.discard(ctx, uploaded)
		return zero, err
	}
	return v, nil
}

// Update changes the submitted fields. A new image replaces the old one,
// which is deleted after the row is updated.
func (s *Content[T]) Update(ctx context.Context, id int64, f model.Form) (T, error) {
	var zero T
	values, err := s.values(f, false)
	if err != nil {
		return zero, err
	}
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	uploaded, err := s.upload(ctx, f, values)
	if err != nil {
		return zero, err
	}

	v, err := s.repo.Update(ctx, id, values)
	if err != nil {
		s.discard(ctx, uploaded)
		return zero, err
	}
	if uploaded != "" && s.image != nil {
		s.discard(ctx, s.image(old))
	}
	return v, nil
}

func (s *Content[T]) Delete(ctx context.Context, id int64) error {
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.image != nil {
		s.discard(ctx, s.image(old))
	}
	return nil
}

// values converts the form into column values. Empty values are dropped;
// required fields must be present on create.
func (s *Content[T]) values(f model.Form, create bool) (map[string]any, error) {
	known := make(map[string]bool, len(s.sec.Fields)+1)
	out := make(map[string]any, len(f.Values))
	for _, fd := range s.sec.Fields {
		known[fd.Name] = true
		raw := strings.TrimSpace(f.Value(fd.Name))
		if raw == "" {
			if create && fd.Required {
				return nil, fmt.Errorf("%w: %s is required", errs.ErrValidation, fd.Name)
			}
			continue
		}
		switch fd.Kind {
		case Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be true or false", errs.ErrValidation, fd.Name)
			}
			out[fd.Name] = b
		case Link:
			if !isHTTPURL(raw) {
				return nil, fmt.Errorf("%w: %s must be a valid URL", errs.ErrValidation, fd.Name)
			}
			out[fd.Name] = raw
		default:
			out[fd.Name] = raw
		}
	}

	// an already uploaded image may be resubmitted by URL
	if s.sec.FileField != "" {
		known[s.sec.FileField] = true
		if raw := strings.TrimSpace(f.Value(s.sec.FileField)); raw != "" {
			out[s.sec.ImageColumn] = raw
		}
	}
	for k := range f.Values {
		if !known[k] {
			return nil, fmt.Errorf("%w: unknown field %q", errs.ErrValidation, k)
		}
	}
	return out, nil
}

func (s *Content[T]) upload(ctx context.Context, f model.Form, values map[string]any) (string, error) {
	if f.File == nil {
		return "", nil
	}
	if s.sec.FileField == "" || (f.File.Field != "" && f.File.Field != s.sec.FileField) {
		return "", fmt.Errorf("%w: unexpected file field %q", errs.ErrValidation, f.File.Field)
	}
	loc, err := s.images.Put(ctx, *f.File)
	if err != nil {
		return "", err
	}
	values[s.sec.ImageColumn] = loc
	return loc, nil
}

func (s *Content[T]) discard(ctx context.Context, loc string) {
	if loc == "" {
		return
	}
	if err := s.images.Delete(context.WithoutCancel(ctx), loc); err != nil {
		s.log.Warn("delete image", zap.String("url", loc), zap.Error(err))
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
