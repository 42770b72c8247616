package client

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CredentialStore persists the session token between runs.
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileCredentialStore keeps the token in a file, readable by the owner
// only.
type FileCredentialStore struct {
	Path string
}

var _ CredentialStore = (*FileCredentialStore)(nil)

func (s *FileCredentialStore) Load() (string, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrap(err, "reading credential file")
	}
	return string(b), nil
}

func (s *FileCredentialStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return errors.Wrap(err, "creating credential dir")
	}
	return errors.Wrap(os.WriteFile(s.Path, []byte(token), 0o600), "writing credential file")
}

func (s *FileCredentialStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing credential file")
	}
	return nil
}

type noopCredentialStore struct{}

func (noopCredentialStore) Load() (string, error) { return "", nil }
func (noopCredentialStore) Save(string) error     { return nil }
func (noopCredentialStore) Clear() error          { return nil }
