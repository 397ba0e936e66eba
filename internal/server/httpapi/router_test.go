package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
	"github.com/and161185/tim-admin/internal/service"
)

const goodToken = "good-token"

type fakeAuth struct {
	lastIP string
}

func (a *fakeAuth) Login(_ context.Context, username, password, ip string) (model.LoginResponse, error) {
	a.lastIP = ip
	switch {
	case username == "" || password == "":
		return model.LoginResponse{}, errs.ErrValidation
	case username == "locked":
		return model.LoginResponse{}, errs.ErrRateLimited
	case username != "admin" || password != "secret1":
		return model.LoginResponse{}, errs.ErrInvalidCredentials
	}
	return model.LoginResponse{
		Success:      true,
		AccessToken:  goodToken,
		RefreshToken: "refresh-1",
		User:         model.User{ID: 1, Username: "admin", Role: model.RoleAdmin},
	}, nil
}

func (a *fakeAuth) Refresh(_ context.Context, token string) (string, error) {
	if token != "refresh-1" {
		return "", errs.ErrUnauthorized
	}
	return goodToken, nil
}

func (a *fakeAuth) ChangePassword(_ context.Context, userID int64, old, _ string) error {
	if userID != 1 {
		return errs.ErrNotFound
	}
	if old != "secret1" {
		return errs.ErrInvalidCredentials
	}
	return nil
}

func (a *fakeAuth) ParseAccess(token string) (*model.Claims, error) {
	if token != goodToken {
		return nil, errs.ErrUnauthorized
	}
	return &model.Claims{ID: 1, Username: "admin", Role: model.RoleAdmin}, nil
}

type fakeServices struct {
	items    map[int64]model.Service
	lastQ    model.ListQuery
	lastForm model.Form
	fileBody string
	panics   bool
}

func (s *fakeServices) Section() service.Section { return service.Services }

func (s *fakeServices) List(_ context.Context, q model.ListQuery) (model.Page[model.Service], error) {
	if s.panics {
		panic("boom")
	}
	s.lastQ = q
	var out []model.Service
	for _, it := range s.items {
		out = append(out, it)
	}
	return model.Page[model.Service]{Items: out, Total: len(out), Page: 1, Limit: 10, TotalPages: 1}, nil
}

func (s *fakeServices) Get(_ context.Context, id int64) (model.Service, error) {
	it, ok := s.items[id]
	if !ok {
		return model.Service{}, errs.ErrNotFound
	}
	return it, nil
}

func (s *fakeServices) Create(_ context.Context, f model.Form) (model.Service, error) {
	s.lastForm = f
	if f.Value("title") == "" {
		return model.Service{}, errors.Join(errs.ErrValidation, errors.New("title is required"))
	}
	if f.File != nil {
		b, err := io.ReadAll(f.File.Body)
		if err != nil {
			return model.Service{}, err
		}
		s.fileBody = string(b)
	}
	it := model.Service{ID: int64(len(s.items) + 1), Title: f.Value("title"), SubTitle: f.Value("sub_title"), Image: "http://img/x.png"}
	s.items[it.ID] = it
	return it, nil
}

func (s *fakeServices) Update(_ context.Context, id int64, f model.Form) (model.Service, error) {
	it, ok := s.items[id]
	if !ok {
		return model.Service{}, errs.ErrNotFound
	}
	s.lastForm = f
	if f.Has("title") {
		it.Title = f.Value("title")
	}
	s.items[id] = it
	return it, nil
}

func (s *fakeServices) Delete(_ context.Context, id int64) error {
	if _, ok := s.items[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

type env struct {
	h    http.Handler
	auth *fakeAuth
	svc  *fakeServices
	reg  *prometheus.Registry
}

func newEnv(t *testing.T, mutate ...func(*Options)) *env {
	t.Helper()
	e := &env{
		auth: &fakeAuth{},
		svc:  &fakeServices{items: map[int64]model.Service{4: {ID: 4, Title: "Web", SubTitle: "sites"}}},
		reg:  prometheus.NewRegistry(),
	}
	opts := Options{
		Log:      zaptest.NewLogger(t),
		Auth:     e.auth,
		Content:  Content{Services: e.svc},
		Registry: e.reg,
	}
	for _, m := range mutate {
		m(&opts)
	}
	e.h = NewRouter(opts)
	return e
}

func (e *env) do(t *testing.T, method, path, contentType string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *env) json(t *testing.T, method, path string, v any, token string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, method, path, "application/json", bytes.NewReader(b), token)
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	return body.Message
}

func TestLogin(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.json(t, http.MethodPost, "/auth/login", model.Credentials{Username: "admin", Password: "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, goodToken, resp.AccessToken)
	require.Equal(t, "refresh-1", resp.RefreshToken)
	require.Equal(t, "admin", resp.User.Username)
	require.Equal(t, "192.0.2.1", e.auth.lastIP)

	rec = e.json(t, http.MethodPost, "/auth/login", model.Credentials{Username: "admin", Password: "nope"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid username or password", message(t, rec))

	rec = e.json(t, http.MethodPost, "/auth/login", model.Credentials{Username: "locked", Password: "x"}, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = e.do(t, http.MethodPost, "/auth/login", "application/json", strings.NewReader(`{"username":`), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/auth/login", "application/json", strings.NewReader(`{"username":"a","password":"b","extra":1}`), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.json(t, http.MethodPost, "/auth/refresh", model.RefreshRequest{RefreshToken: "refresh-1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, goodToken, resp.AccessToken)

	rec = e.json(t, http.MethodPost, "/auth/refresh", model.RefreshRequest{RefreshToken: "stale"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	body := model.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"}

	rec := e.json(t, http.MethodPost, "/auth/change-password", body, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.json(t, http.MethodPost, "/auth/change-password", body, goodToken)
	require.Equal(t, http.StatusNoContent, rec.Code)

	body.OldPassword = "wrong"
	rec = e.json(t, http.MethodPost, "/auth/change-password", body, goodToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, message(t, rec), "current password is incorrect")
}

func TestContent_RequiresBearer(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, PathServices, "", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Unauthorized", message(t, rec))

	rec = e.do(t, http.MethodGet, PathServices, "", nil, "forged")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestContent_ListAndGet(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, PathServices+"?page=2&limit=5&search=web", "", nil, goodToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.ListQuery{Page: 2, Limit: 5, Search: "web"}, e.svc.lastQ)

	var page model.Page[model.Service]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, 1, page.Total)

	rec = e.do(t, http.MethodGet, PathServices+"?page=abc", "", nil, goodToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, PathServices+"/4", "", nil, goodToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var it model.Service
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &it))
	require.Equal(t, "Web", it.Title)

	rec = e.do(t, http.MethodGet, PathServices+"/99", "", nil, goodToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, PathServices+"/zero", "", nil, goodToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContent_EmptyListIsArray(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.svc.items = map[int64]model.Service{}

	rec := e.do(t, http.MethodGet, PathServices, "", nil, goodToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestContent_CreateMultipart(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Design"))
	require.NoError(t, mw.WriteField("sub_title", "logos"))
	fw, err := mw.CreateFormFile("img", "logo.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := e.do(t, http.MethodPost, PathServices, mw.FormDataContentType(), &buf, goodToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "Design", e.svc.lastForm.Value("title"))
	require.NotNil(t, e.svc.lastForm.File)
	require.Equal(t, "img", e.svc.lastForm.File.Field)
	require.Equal(t, "logo.png", e.svc.lastForm.File.Name)
	require.Equal(t, "png-bytes", e.svc.fileBody)
}

func TestContent_RejectsForeignFilePart(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Design"))
	fw, err := mw.CreateFormFile("avatar", "a.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("x"))
	require.NoError(t, mw.Close())

	rec := e.do(t, http.MethodPost, PathServices, mw.FormDataContentType(), &buf, goodToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, message(t, rec), "avatar")
}

func TestContent_UploadTooLarge(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(o *Options) { o.MaxUploadBytes = 1024 })

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("img", "big.png")
	require.NoError(t, err)
	_, _ = fw.Write(bytes.Repeat([]byte("a"), 4096))
	require.NoError(t, mw.Close())

	rec := e.do(t, http.MethodPost, PathServices, mw.FormDataContentType(), &buf, goodToken)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestContent_UpdateJSONAndDelete(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.json(t, http.MethodPut, PathServices+"/4", map[string]any{"title": "Apps", "visible": true, "rank": 2}, goodToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Apps", e.svc.items[4].Title)
	require.Equal(t, "true", e.svc.lastForm.Value("visible"))
	require.Equal(t, "2", e.svc.lastForm.Value("rank"))

	rec = e.json(t, http.MethodPut, PathServices+"/4", map[string]any{"title": []string{"a"}}, goodToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodDelete, PathServices+"/4", "", nil, goodToken)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodDelete, PathServices+"/4", "", nil, goodToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContent_UnsupportedContentType(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, PathServices, "text/plain", strings.NewReader("title=x"), goodToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, PathServices, "application/x-www-form-urlencoded", strings.NewReader("title=Design&sub_title=s"), goodToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "s", e.svc.lastForm.Value("sub_title"))
}

func TestUnmountedSection(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, PathReviews, "", nil, goodToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddleware_RequestIDAndMetrics(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, PathServices+"/4", "", nil, goodToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	expected := `
# HELP tim_http_requests_total HTTP requests by route pattern and status code.
# TYPE tim_http_requests_total counter
tim_http_requests_total{code="200",method="GET",route="/healthz"} 1
tim_http_requests_total{code="200",method="GET",route="/our-services/{id}"} 1
`
	require.NoError(t, testutil.GatherAndCompare(e.reg, strings.NewReader(expected), "tim_http_requests_total"))

	rec = e.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tim_http_request_duration_seconds")
}

func TestMiddleware_RecoversPanics(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.svc.panics = true

	rec := e.do(t, http.MethodGet, PathServices, "", nil, goodToken)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Internal server error", message(t, rec))
}

func TestMiddleware_RateLimit(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(o *Options) {
		o.RateLimitRPS = 0.001
		o.RateLimitBurst = 2
	})

	for range 2 {
		require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "", nil, "").Code)
	}
	rec := e.do(t, http.MethodGet, "/healthz", "", nil, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestHealth(t *testing.T) {
	t.Parallel()
	down := errors.New("db down")
	e := newEnv(t, func(o *Options) { o.Health = func(context.Context) error { return down } })

	rec := e.do(t, http.MethodGet, "/healthz", "", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "unavailable")
}

func TestImagesServedFromDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o600))
	e := newEnv(t, func(o *Options) { o.ImagesDir = dir })

	rec := e.do(t, http.MethodGet, "/images/a.png", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "png", rec.Body.String())

	rec = e.do(t, http.MethodGet, "/images/missing.png", "", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
