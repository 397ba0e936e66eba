package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/and161185/tim-admin/internal/model"
)

const fileName = "session.json"

// File keeps credentials in one of two JSON documents:
//
//   - durable, under the config dir, survives restarts (remember me);
//   - ephemeral, under the runtime dir, lost when the login session ends.
//
// The remember-me flag always lives in the durable document.
type File struct {
	mu        sync.Mutex
	durable   string
	ephemeral string
}

var _ Store = (*File)(nil)

// NewFile constructs a file-backed store rooted at the given directories.
func NewFile(configDir, runtimeDir string) *File {
	return &File{
		durable:   filepath.Join(configDir, fileName),
		ephemeral: filepath.Join(runtimeDir, fileName),
	}
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/tim-admin or ~/.config/tim-admin.
func DefaultConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "tim-admin")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tim-admin")
}

// DefaultRuntimeDir returns $XDG_RUNTIME_DIR/tim-admin, falling back to a per-user temp dir.
func DefaultRuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, "tim-admin")
	}
	return filepath.Join(os.TempDir(), "tim-admin-"+strconv.Itoa(os.Getuid()))
}

// active returns the document currently holding credentials, or an empty one.
func (f *File) active() document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, err := readDoc(f.ephemeral); err == nil && d.hasCredentials() {
		return d
	}
	if d, err := readDoc(f.durable); err == nil && d.hasCredentials() {
		return d
	}
	return document{}
}

func (f *File) Access() string    { return f.active()[KeyAccess] }
func (f *File) Refresh() string   { return f.active()[KeyRefresh] }
func (f *File) User() *model.User { return f.active().user() }

func (f *File) RememberMe() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := readDoc(f.durable)
	if err != nil {
		return false
	}
	return d.rememberMe()
}

// Set writes the credentials to the document selected by rememberMe and
// removes them from the other one.
func (f *File) Set(access, refresh string, user *model.User, rememberMe bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	durable, err := readDoc(f.durable)
	if err != nil {
		return err
	}
	ephemeral, err := readDoc(f.ephemeral)
	if err != nil {
		return err
	}

	target, other := ephemeral, durable
	targetPath, otherPath := f.ephemeral, f.durable
	if rememberMe {
		target, other = durable, ephemeral
		targetPath, otherPath = f.durable, f.ephemeral
	}

	target.dropCredentials()
	target[KeyAccess] = access
	if refresh != "" {
		target[KeyRefresh] = refresh
	}
	if user != nil {
		b, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		target[KeyUser] = string(b)
	}
	durable[KeyRememberMe] = strconv.FormatBool(rememberMe)

	if err := writeDoc(targetPath, target); err != nil {
		return err
	}
	other.dropCredentials()
	return writeDoc(otherPath, other)
}

// RotateAccess swaps the access token in whichever document holds prevRefresh.
func (f *File) RotateAccess(prevRefresh, access string) (bool, error) {
	if prevRefresh == "" {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range []string{f.ephemeral, f.durable} {
		d, err := readDoc(p)
		if err != nil {
			return false, err
		}
		if !d.hasCredentials() {
			continue
		}
		if d[KeyRefresh] != prevRefresh {
			return false, nil
		}
		d[KeyAccess] = access
		if err := writeDoc(p, d); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Clear removes credentials from both documents, keeping the remember-me flag.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errList []error
	for _, p := range []string{f.ephemeral, f.durable} {
		d, err := readDoc(p)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		d.dropCredentials()
		if err := writeDoc(p, d); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func readDoc(path string) (document, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	d := document{}
	if len(b) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(b, &d); err != nil {
		// a corrupt document is treated as empty and overwritten on next write
		return document{}, nil
	}
	return d, nil
}

// writeDoc replaces the file atomically via a temp file in the same directory.
func writeDoc(path string, d document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if len(d) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		return nil
	}

	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
