package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// credentialsFile is the on-disk layout: one token per key (profile).
type credentialsFile struct {
	Profiles map[string]string `json:"profiles"`
}

// FilePersister keeps tokens in a JSON credentials file readable only by the
// current user.
type FilePersister struct {
	path string
	mu   sync.Mutex
}

// NewFilePersister returns a persister writing to path. The parent directory
// is created on first save.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// DefaultCredentialsPath returns ~/.config/<app>/credentials.json.
func DefaultCredentialsPath(app string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", app, "credentials.json"), nil
}

// Path returns the credentials file location.
func (p *FilePersister) Path() string { return p.path }

func (p *FilePersister) Load(_ context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := p.read()
	if err != nil {
		return "", err
	}
	token, ok := f.Profiles[key]
	if !ok || token == "" {
		return "", ErrNotFound
	}
	return token, nil
}

func (p *FilePersister) Save(_ context.Context, key, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := p.read()
	if err != nil {
		return err
	}
	f.Profiles[key] = token
	return p.write(f)
}

func (p *FilePersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := p.read()
	if err != nil {
		return err
	}
	if _, ok := f.Profiles[key]; !ok {
		return ErrNotFound
	}
	delete(f.Profiles, key)
	return p.write(f)
}

func (p *FilePersister) read() (*credentialsFile, error) {
	b, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return &credentialsFile{Profiles: map[string]string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var f credentialsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode credentials file: %w", err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]string{}
	}
	return &f, nil
}

func (p *FilePersister) write(f *credentialsFile) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}
