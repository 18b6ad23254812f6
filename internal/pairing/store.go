package pairing

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	perrors "github.com/Iron-Ham/pairlink/internal/errors"
	"github.com/Iron-Ham/pairlink/internal/logging"
)

// DefaultExtensions are the import source extensions accepted when a Store
// is created without an explicit list.
var DefaultExtensions = []string{".mobiledevicepairing", ".plist"}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Path is the full path of the active credential file.
	Path string
	// AllowedExtensions restricts import sources. Nil means DefaultExtensions.
	AllowedExtensions []string
	Logger            *logging.Logger
}

// Store manages the single active pairing credential on disk. It does no
// locking of its own; callers serialise imports.
type Store struct {
	path       string
	extensions []string
	logger     *logging.Logger
}

// NewStore creates a Store for cfg.Path.
func NewStore(cfg StoreConfig) *Store {
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	normalized := make([]string, len(exts))
	for i, ext := range exts {
		normalized[i] = strings.ToLower(ext)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Store{
		path:       cfg.Path,
		extensions: normalized,
		logger:     logger.WithComponent("pairing"),
	}
}

// Path returns the location of the active credential.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a credential file is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular()
}

// Load reads the active credential. A missing file returns an error
// wrapping ErrCredentialMissing. A file that cannot be decoded is still
// returned, with empty identifiers, so the heartbeat can reject it.
func (s *Store) Load() (Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if isNotExist(err) {
			return Credential{}, fmt.Errorf("%w: %s", perrors.ErrCredentialMissing, s.path)
		}
		return Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}

	cred, inspectErr := Inspect(data)
	if inspectErr != nil {
		s.logger.Warn("stored credential could not be decoded",
			"path", s.path,
			"error", inspectErr.Error())
	}
	cred.Path = s.path
	return cred, nil
}

// Remove deletes the active credential. Removing a missing credential is
// not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}

// Accepts reports whether path has an extension the Store imports.
func (s *Store) Accepts(path string) bool {
	return slices.Contains(s.extensions, strings.ToLower(filepath.Ext(path)))
}

// ImportAndReplace validates src, deletes the active credential and copies
// src into its place. Validation failures leave the existing credential
// untouched. If the copy fails the partial file is removed, so at most one
// credential exists when this returns.
func (s *Store) ImportAndReplace(src string) error {
	fail := func(msg string, cause error) error {
		err := perrors.NewImportError(msg, cause).WithSource(src).WithDestination(s.path)
		s.logger.Error("credential import failed", "source", src, "error", err.Error())
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return fail("cannot read source", err)
	}
	if !info.Mode().IsRegular() {
		return fail("source is not a regular file", perrors.ErrInvalidCredentialFile)
	}
	if !s.Accepts(src) {
		return fail(fmt.Sprintf("unsupported extension %q", filepath.Ext(src)), perrors.ErrInvalidCredentialFile)
	}

	// Importing the active file onto itself would delete it before the copy.
	if dst, err := os.Stat(s.path); err == nil && os.SameFile(info, dst) {
		s.logger.Info("import source is the active credential, nothing to do", "source", src)
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fail("cannot read source", err)
	}
	cred, err := Inspect(data)
	if err != nil {
		return fail("source is not a property list", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fail("cannot create credential directory", err)
	}
	if err := s.Remove(); err != nil {
		return fail("cannot delete existing credential", err)
	}
	if err := writeNew(s.path, data); err != nil {
		_ = os.Remove(s.path)
		return fail("cannot copy credential", err)
	}

	s.logger.Info("credential imported",
		"source", src,
		"path", s.path,
		"host_id", cred.HostID)
	return nil
}

func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func isNotExist(err error) bool {
	return perrors.Is(err, fs.ErrNotExist)
}
