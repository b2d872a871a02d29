// Package endpoints computes base URLs for the three logical services and
// recovers automatically when the expected port or proxy path is wrong, by
// probing an ordered list of candidates and persisting the first that
// answers.
package endpoints

import (
	"context"
	"fmt"
	"sync"

	"voicebridge/core"
)

// Well-known ports and API prefixes per service when the client shares a
// host with the services and can reach raw ports directly.
var defaultPorts = map[core.Service]struct {
	port   int
	prefix string
}{
	core.ServiceChat: {port: 11434, prefix: "/api"},
	core.ServiceTTS:  {port: 8880, prefix: "/v1"},
	core.ServiceSTT:  {port: 8756, prefix: "/v1"},
}

// Reverse-proxy paths used when the client itself is served over a secure
// transport: a secure page cannot call plaintext ports, so each service is
// expected behind a path on the page's own origin.
var securePaths = map[core.Service]string{
	core.ServiceChat: "/ollama/api",
	core.ServiceTTS:  "/tts/v1",
	core.ServiceSTT:  "/stt/v1",
}

// ProbeFunc issues a short-timeout liveness call against a base URL and
// returns nil when the service answers. The orchestrator supplies one
// backed by its transport.
type ProbeFunc func(ctx context.Context, baseURL string) error

// Resolver computes per-service base URLs. Precedence, highest first:
// explicit override, probe-adopted URL, computed default.
type Resolver struct {
	mu        sync.Mutex
	host      string
	secure    bool
	overrides map[core.Service]string
	adopted   map[core.Service]string
	store     *OverrideStore
	logger    *core.Logger
}

// NewResolver creates a Resolver for a client colocated with its services
// on host. When secure is true the computed defaults use reverse-proxy
// paths instead of raw ports. store may be nil, in which case adopted
// overrides live only for the process lifetime.
func NewResolver(host string, secure bool, store *OverrideStore, logger *core.Logger) *Resolver {
	if host == "" {
		host = "localhost"
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	r := &Resolver{
		host:      host,
		secure:    secure,
		overrides: make(map[core.Service]string),
		adopted:   make(map[core.Service]string),
		store:     store,
		logger:    logger.With(map[string]interface{}{"component": "endpoints"}),
	}
	if store != nil {
		for svc, url := range store.Load() {
			r.adopted[svc] = url
		}
	}
	return r
}

// Resolve returns the base URL for service.
func (r *Resolver) Resolve(service core.Service) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if url, ok := r.overrides[service]; ok && url != "" {
		return url
	}
	if url, ok := r.adopted[service]; ok && url != "" {
		return url
	}
	return r.computedDefaultLocked(service)
}

// SetOverride installs an explicit override for service. An empty URL
// removes the override. Explicit overrides always win over defaults and
// probe-adopted URLs.
func (r *Resolver) SetOverride(service core.Service, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if url == "" {
		delete(r.overrides, service)
		return
	}
	r.overrides[service] = url
}

// Candidates returns the fallback base URLs tried for service when the
// primary does not answer: the secure proxy path, the raw port, and the
// loopback variant of the raw port, minus whatever Resolve already returns.
func (r *Resolver) Candidates(service core.Service) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	primary := ""
	if url, ok := r.overrides[service]; ok {
		primary = url
	} else if url, ok := r.adopted[service]; ok {
		primary = url
	} else {
		primary = r.computedDefaultLocked(service)
	}

	d := defaultPorts[service]
	all := []string{
		fmt.Sprintf("https://%s%s", r.host, securePaths[service]),
		fmt.Sprintf("http://%s:%d%s", r.host, d.port, d.prefix),
		fmt.Sprintf("http://localhost:%d%s", d.port, d.prefix),
	}
	out := make([]string, 0, len(all))
	seen := map[string]bool{primary: true}
	for _, url := range all {
		if !seen[url] {
			seen[url] = true
			out = append(out, url)
		}
	}
	return out
}

// ProbeWithFallback checks the primary URL and, on failure, each candidate
// in order. The first URL that answers is adopted (and persisted) as the
// service's base URL going forward. It returns the working URL, or the last
// probe error when nothing answers.
func (r *Resolver) ProbeWithFallback(ctx context.Context, service core.Service, probe ProbeFunc, primary string, candidates []string) (string, error) {
	if err := probe(ctx, primary); err == nil {
		return primary, nil
	} else if len(candidates) == 0 {
		return "", err
	}

	var lastErr error
	for _, candidate := range candidates {
		if err := probe(ctx, candidate); err != nil {
			lastErr = err
			continue
		}
		r.adopt(service, candidate)
		return candidate, nil
	}
	return "", lastErr
}

func (r *Resolver) adopt(service core.Service, url string) {
	r.mu.Lock()
	r.adopted[service] = url
	store := r.store
	snapshot := make(map[core.Service]string, len(r.adopted))
	for svc, u := range r.adopted {
		snapshot[svc] = u
	}
	r.mu.Unlock()

	r.logger.Info("adopted fallback endpoint", "service", string(service), "url", url)
	if store != nil {
		if err := store.Save(snapshot); err != nil {
			r.logger.Warn("failed to persist endpoint override", "error", err)
		}
	}
}

// computedDefaultLocked derives the default base URL for service from the
// host and security context. Must be called with r.mu held.
func (r *Resolver) computedDefaultLocked(service core.Service) string {
	if r.secure {
		return fmt.Sprintf("https://%s%s", r.host, securePaths[service])
	}
	d := defaultPorts[service]
	return fmt.Sprintf("http://%s:%d%s", r.host, d.port, d.prefix)
}
