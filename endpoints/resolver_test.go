package endpoints

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebridge/core"
)

func TestResolveDefaults(t *testing.T) {
	r := NewResolver("studio.local", false, nil, core.NewNopLogger())

	assert.Equal(t, "http://studio.local:11434/api", r.Resolve(core.ServiceChat))
	assert.Equal(t, "http://studio.local:8880/v1", r.Resolve(core.ServiceTTS))
	assert.Equal(t, "http://studio.local:8756/v1", r.Resolve(core.ServiceSTT))
}

func TestResolveSecureContextPrefersProxyPaths(t *testing.T) {
	r := NewResolver("studio.local", true, nil, core.NewNopLogger())

	assert.Equal(t, "https://studio.local/ollama/api", r.Resolve(core.ServiceChat))
	assert.Equal(t, "https://studio.local/tts/v1", r.Resolve(core.ServiceTTS))
	assert.Equal(t, "https://studio.local/stt/v1", r.Resolve(core.ServiceSTT))
}

func TestExplicitOverrideWinsOverEverything(t *testing.T) {
	r := NewResolver("studio.local", true, nil, core.NewNopLogger())
	r.adopted[core.ServiceChat] = "http://adopted:1234/api"

	r.SetOverride(core.ServiceChat, "http://override:9999/api")
	assert.Equal(t, "http://override:9999/api", r.Resolve(core.ServiceChat))

	r.SetOverride(core.ServiceChat, "")
	assert.Equal(t, "http://adopted:1234/api", r.Resolve(core.ServiceChat))
}

func TestCandidatesExcludePrimary(t *testing.T) {
	r := NewResolver("studio.local", false, nil, core.NewNopLogger())

	candidates := r.Candidates(core.ServiceChat)
	assert.NotContains(t, candidates, r.Resolve(core.ServiceChat))
	assert.Contains(t, candidates, "https://studio.local/ollama/api")
	assert.Contains(t, candidates, "http://localhost:11434/api")
}

func TestProbeWithFallbackPrimaryHealthy(t *testing.T) {
	r := NewResolver("studio.local", false, nil, core.NewNopLogger())

	var probed []string
	probe := func(ctx context.Context, url string) error {
		probed = append(probed, url)
		return nil
	}

	url, err := r.ProbeWithFallback(context.Background(), core.ServiceChat, probe, "http://primary/api", []string{"http://alt/api"})
	require.NoError(t, err)
	assert.Equal(t, "http://primary/api", url)
	assert.Equal(t, []string{"http://primary/api"}, probed)
	assert.Empty(t, r.adopted, "a healthy primary is not re-adopted")
}

func TestProbeWithFallbackAdoptsFirstWorkingCandidate(t *testing.T) {
	dir := t.TempDir()
	store := NewOverrideStore(filepath.Join(dir, "endpoints.json"))
	r := NewResolver("studio.local", false, store, core.NewNopLogger())

	down := errors.New("connection refused")
	probe := func(ctx context.Context, url string) error {
		if url == "http://alt2/api" {
			return nil
		}
		return down
	}

	url, err := r.ProbeWithFallback(context.Background(), core.ServiceChat, probe,
		"http://primary/api", []string{"http://alt1/api", "http://alt2/api", "http://alt3/api"})
	require.NoError(t, err)
	assert.Equal(t, "http://alt2/api", url)
	assert.Equal(t, "http://alt2/api", r.Resolve(core.ServiceChat), "adopted URL becomes the resolved base")

	// A fresh resolver picks the persisted adoption back up.
	r2 := NewResolver("studio.local", false, store, core.NewNopLogger())
	assert.Equal(t, "http://alt2/api", r2.Resolve(core.ServiceChat))
}

func TestProbeWithFallbackAllDownReturnsLastError(t *testing.T) {
	r := NewResolver("studio.local", false, nil, core.NewNopLogger())

	lastErr := errors.New("alt2 down")
	probe := func(ctx context.Context, url string) error {
		if url == "http://alt2/api" {
			return lastErr
		}
		return errors.New("down")
	}

	_, err := r.ProbeWithFallback(context.Background(), core.ServiceChat, probe,
		"http://primary/api", []string{"http://alt1/api", "http://alt2/api"})
	assert.Same(t, lastErr, err)
	assert.Empty(t, r.adopted)
}

func TestOverrideStoreMissingFile(t *testing.T) {
	store := NewOverrideStore(filepath.Join(t.TempDir(), "missing.json"))
	assert.Empty(t, store.Load())
}
