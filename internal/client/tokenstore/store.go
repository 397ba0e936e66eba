// Package tokenstore persists the credential pair, the user profile and the
// remember-me preference. It carries no policy: callers decide what to store.
package tokenstore

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/and161185/tim-admin/internal/model"
)

// Persisted keys, all under the "tim_" namespace.
const (
	KeyAccess     = "tim_access_token"
	KeyRefresh    = "tim_refresh_token"
	KeyUser       = "tim_user_data"
	KeyRememberMe = "tim_remember_me"
)

// Store is the single source of truth for persisted credential state.
// Empty strings and nil mean "absent".
type Store interface {
	Access() string
	Refresh() string
	User() *model.User
	RememberMe() bool
	// Set overwrites all four values as one write.
	Set(access, refresh string, user *model.User, rememberMe bool) error
	// RotateAccess replaces the access token only while prevRefresh is still
	// the stored refresh token. User and remember-me are kept. It reports
	// whether the swap happened.
	RotateAccess(prevRefresh, access string) (bool, error)
	// Clear removes access, refresh and user; the remember-me preference is kept.
	Clear() error
}

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	access   string
	refresh  string
	user     *model.User
	remember bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-process store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Access() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

func (m *Memory) Refresh() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresh
}

func (m *Memory) User() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Memory) RememberMe() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.remember
}

func (m *Memory) Set(access, refresh string, user *model.User, rememberMe bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access, m.refresh, m.remember = access, refresh, rememberMe
	m.user = nil
	if user != nil {
		u := *user
		m.user = &u
	}
	return nil
}

func (m *Memory) RotateAccess(prevRefresh, access string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prevRefresh == "" || m.refresh != prevRefresh {
		return false, nil
	}
	m.access = access
	return true, nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access, m.refresh, m.user = "", "", nil
	return nil
}

// document is the on-disk shape: a flat map of namespaced keys to strings.
type document map[string]string

func (d document) hasCredentials() bool { return d[KeyAccess] != "" }

func (d document) user() *model.User {
	raw := d[KeyUser]
	if raw == "" {
		return nil
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil
	}
	return &u
}

func (d document) rememberMe() bool {
	v, _ := strconv.ParseBool(d[KeyRememberMe])
	return v
}

func (d document) dropCredentials() {
	delete(d, KeyAccess)
	delete(d, KeyRefresh)
	delete(d, KeyUser)
}
