package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/tim-admin/internal/client/gateway"
	"github.com/and161185/tim-admin/internal/client/tokenstore"
	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
)

// newClient returns a Client whose gateway talks to h with a stored token.
func newClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	store := tokenstore.NewMemory()
	require.NoError(t, store.Set("access", "refresh", &model.User{ID: 1, Username: "admin"}, false))
	gw := gateway.New(gateway.Config{BaseURL: srv.URL, Client: srv.Client()}, store, NewAuth(srv.URL, srv.Client()), zaptest.NewLogger(t))
	return NewClient(gw), srv
}

func TestAuth_Login(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathLogin, r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"), "login bypasses the gateway")
		var c model.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		switch c.Password {
		case "secret1":
			_, _ = io.WriteString(w, `{"success":true,"accessToken":"a","refreshToken":"r","user":{"id":1,"username":"admin","role":"admin"}}`)
		case "locked":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"message":"Too many attempts"}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Invalid username or password"}`)
		}
	}))
	defer srv.Close()
	a := NewAuth(srv.URL+"/", srv.Client())
	ctx := context.Background()

	resp, err := a.Login(ctx, model.Credentials{Username: "admin", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "a", resp.AccessToken)
	require.Equal(t, "r", resp.RefreshToken)
	require.Equal(t, model.User{ID: 1, Username: "admin", Role: "admin"}, resp.User)

	_, err = a.Login(ctx, model.Credentials{Username: "admin", Password: "wrong"})
	require.True(t, errors.Is(err, errs.ErrInvalidCredentials))
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Invalid username or password", apiErr.Message)

	_, err = a.Login(ctx, model.Credentials{Username: "admin", Password: "locked"})
	require.True(t, errors.Is(err, errs.ErrRateLimited))
	require.False(t, errors.Is(err, errs.ErrInvalidCredentials))
}

func TestAuth_Refresh(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in model.RefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in.RefreshToken != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"accessToken":"fresh"}`)
	}))
	defer srv.Close()
	a := NewAuth(srv.URL, srv.Client())

	tok, err := a.Refresh(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, "fresh", tok)

	_, err = a.Refresh(context.Background(), "bad")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAccount_ChangePassword(t *testing.T) {
	t.Parallel()

	var got model.ChangePasswordRequest
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathChangePassword, r.URL.Path)
		require.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.Account.ChangePassword(context.Background(), "old", "new-secret"))
	require.Equal(t, model.ChangePasswordRequest{OldPassword: "old", NewPassword: "new-secret"}, got)
	require.ErrorIs(t, c.Account.ChangePassword(context.Background(), "", "x"), errs.ErrValidation)
}

func TestResource_CreateMultipart(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, PathServices, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Design", r.FormValue("title"))
		_, present := r.MultipartForm.Value["sub_title"]
		require.False(t, present, "empty values are omitted")

		f, hdr, err := r.FormFile("img")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		require.Equal(t, "logo.png", hdr.Filename)
		require.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		require.Equal(t, "PNG", string(b))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":9,"title":"Design","image":"/uploads/logo.png"}}`)
	}))

	svc, err := c.Services.Create(context.Background(), model.Form{
		Values: map[string]string{"title": "Design", "sub_title": ""},
		File:   &model.Upload{Field: "img", Name: "logo.png", ContentType: "image/png", Body: strings.NewReader("PNG")},
	})
	require.NoError(t, err)
	require.Equal(t, int64(9), svc.ID)
	require.Equal(t, "/uploads/logo.png", svc.Image)
}

func TestResource_MultipartWithoutFile(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, PathReviews+"/3", r.URL.Path)
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Great", r.FormValue("user_review"))
		_, _ = io.WriteString(w, `{"id":3,"user_name":"Ann","user_review":"Great"}`)
	}))

	rv, err := c.Reviews.Update(context.Background(), 3, model.Form{Values: map[string]string{"user_review": "Great"}})
	require.NoError(t, err)
	require.Equal(t, "Ann", rv.UserName)
}

func TestResource_TranslationsAsJSON(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, map[string]any{"key": "hello", "name_ru": "Привет", "is_use": true}, in)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1,"key":"hello","name_ru":"Привет","is_use":true}`)
	}))

	tr, err := c.Translations.Create(context.Background(), model.Form{Values: map[string]string{
		"key": "hello", "name_ru": "Привет", "name_uz": "", "is_use": "true",
	}})
	require.NoError(t, err)
	require.True(t, tr.IsUse)

	_, err = c.Translations.Create(context.Background(), model.Form{Values: map[string]string{"is_use": "maybe"}})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestResource_GetAndDelete(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == PathProjects+"/4":
			_, _ = io.WriteString(w, `{"id":4,"title":"Bridge","info":"steel","link":"https://example.com"}`)
		case r.Method == http.MethodDelete && r.URL.Path == PathProjects+"/4":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"Project not found"}`)
		}
	}))
	ctx := context.Background()

	p, err := c.Projects.Get(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, "Bridge", p.Title)
	require.Equal(t, "steel", p.Info)

	require.NoError(t, c.Projects.Delete(ctx, 4))

	_, err = c.Projects.Get(ctx, 5)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestResource_PaginateQuery(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "2", q.Get("page"))
		require.Equal(t, "5", q.Get("limit"))
		require.Equal(t, "hel lo", q.Get("search"))
		_, _ = io.WriteString(w, `{"data":[{"id":6,"key":"hello"}],"total":6,"page":2,"limit":5,"totalPages":2}`)
	}))

	p, err := c.Translations.Paginate(context.Background(), model.ListQuery{Page: 2, Limit: 5, Search: "hel lo"})
	require.NoError(t, err)
	require.Equal(t, model.Page[model.Translation]{
		Items: []model.Translation{{ID: 6, Key: "hello"}}, Total: 6, Page: 2, Limit: 5, TotalPages: 2,
	}, p)
}

func TestNormalizePage(t *testing.T) {
	t.Parallel()

	type item struct {
		ID int `json:"id"`
	}
	q := model.ListQuery{Page: 3, Limit: 2}

	cases := []struct {
		name string
		body string
		want model.Page[item]
	}{
		{"bare array", `[{"id":1},{"id":2},{"id":3}]`,
			model.Page[item]{Items: []item{{1}, {2}, {3}}, Total: 3, Page: 3, Limit: 2, TotalPages: 2}},
		{"items with meta", `{"items":[{"id":1}],"meta":{"total":"7","page":1,"limit":5}}`,
			model.Page[item]{Items: []item{{1}}, Total: 7, Page: 1, Limit: 5, TotalPages: 2}},
		{"results with pagination", `{"results":[{"id":1}],"pagination":{"total":4,"totalPages":9}}`,
			model.Page[item]{Items: []item{{1}}, Total: 4, Page: 3, Limit: 2, TotalPages: 9}},
		{"data.items", `{"data":{"items":[{"id":5}],"total":11,"limit":10}}`,
			model.Page[item]{Items: []item{{5}}, Total: 11, Page: 3, Limit: 10, TotalPages: 2}},
		{"data.data with count", `{"data":{"data":[{"id":5},{"id":6}],"count":2}}`,
			model.Page[item]{Items: []item{{5}, {6}}, Total: 2, Page: 3, Limit: 2, TotalPages: 1}},
		{"nested meta", `{"data":{"meta":{"total":0}}}`,
			model.Page[item]{Items: []item{}, Total: 0, Page: 3, Limit: 2, TotalPages: 1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := normalizePage[item]([]byte(c.body), q)
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}

	_, err := normalizePage[item]([]byte(`not json`), q)
	require.Error(t, err)

	got, err := normalizePage[item]([]byte(`[]`), model.ListQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, got.Page)
	require.Equal(t, model.DefaultPageLimit, got.Limit)
}

func TestDashboard(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathServices:
			_, _ = io.WriteString(w, `[{"id":1},{"id":2}]`)
		case PathReviews:
			_, _ = io.WriteString(w, `{"data":[{"id":1}],"total":14}`)
		case PathDistributors:
			w.WriteHeader(http.StatusInternalServerError)
		case PathProjects:
			_, _ = io.WriteString(w, `[]`)
		case PathTranslations:
			_, _ = io.WriteString(w, `{"data":[{"id":1}],"total":120,"page":1,"limit":1,"totalPages":120}`)
		}
	}))

	stats, err := c.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.DashboardStats{
		ServicesCount: 2, ReviewsCount: 14, DistributorsCount: 0, ProjectsCount: 0, TranslationsCount: 120,
	}, stats)
}
