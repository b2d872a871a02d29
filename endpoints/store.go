package endpoints

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"voicebridge/core"
)

// OverrideStore persists probe-adopted base URLs as a small JSON file so a
// restarted client does not have to rediscover a working endpoint.
type OverrideStore struct {
	path string
}

// NewOverrideStore creates a store backed by the file at path.
func NewOverrideStore(path string) *OverrideStore {
	return &OverrideStore{path: path}
}

// Load reads the persisted overrides. A missing or unreadable file yields
// an empty map; discovery simply starts over.
func (s *OverrideStore) Load() map[core.Service]string {
	out := make(map[core.Service]string)
	data, err := os.ReadFile(s.path)
	if err != nil {
		return out
	}
	var raw map[string]string
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return out
	}
	for svc, url := range raw {
		out[core.Service(svc)] = url
	}
	return out
}

// Save writes the overrides atomically (write-then-rename).
func (s *OverrideStore) Save(overrides map[core.Service]string) error {
	raw := make(map[string]string, len(overrides))
	for svc, url := range overrides {
		raw[string(svc)] = url
	}
	data, err := sonic.Marshal(raw)
	if err != nil {
		return fmt.Errorf("endpoints: marshal overrides: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("endpoints: create %q: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("endpoints: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("endpoints: rename %q: %w", tmp, err)
	}
	return nil
}
