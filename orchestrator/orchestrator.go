// Package orchestrator ties the cache, admission queue, transport, retry
// policy, and endpoint resolver together into one façade per logical
// operation: chat send, speech synthesis, transcription, and status
// probing. It owns all of its state; nothing here is package-global, so
// two orchestrators in one process never share queues or caches.
package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"voicebridge/cache"
	"voicebridge/core"
	"voicebridge/endpoints"
	"voicebridge/queue"
	"voicebridge/transport"
)

// Config carries every tuning knob. Zero values fall back to the
// documented defaults. The retry and deadline numbers differ per operation
// on purpose: synthesis is short-lived, transcription uploads are not.
type Config struct {
	// Host is the machine the services are expected on.
	Host string
	// Secure selects reverse-proxy paths over raw ports.
	Secure bool
	// OverridePath persists probe-adopted endpoints. Empty disables
	// persistence.
	OverridePath string
	// Endpoints are explicit per-service base URL overrides; they always
	// win over computed defaults and adopted URLs.
	Endpoints map[core.Service]string

	TTSModel string
	TTSVoice string

	QueueCeiling   int
	QueueStaleness time.Duration
	CacheTTL       time.Duration
	CacheCapacity  int

	ChatAttempts  int
	ChatBaseDelay time.Duration
	ChatDeadline  time.Duration

	TTSAttempts      int
	TTSBaseDelay     time.Duration
	TTSDeadline      time.Duration
	TTSMaxInputChars int

	STTAttemptsPerFormat int
	STTBaseDelay         time.Duration
	STTDeadline          time.Duration
	STTMaxBytes          int

	StatusDeadline time.Duration
	WarmUpDeadline time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		TTSModel: "kokoro",
		TTSVoice: "af_bella",

		QueueCeiling:   5,
		QueueStaleness: 5 * time.Minute,
		CacheTTL:       time.Minute,
		CacheCapacity:  50,

		ChatAttempts:  3,
		ChatBaseDelay: time.Second,
		ChatDeadline:  60 * time.Second,

		TTSAttempts:      2,
		TTSBaseDelay:     2 * time.Second,
		TTSDeadline:      30 * time.Second,
		TTSMaxInputChars: 4096,

		STTAttemptsPerFormat: 2,
		STTBaseDelay:         time.Second,
		STTDeadline:          60 * time.Second,
		STTMaxBytes:          25 << 20,

		StatusDeadline: 5 * time.Second,
		WarmUpDeadline: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.TTSModel == "" {
		c.TTSModel = def.TTSModel
	}
	if c.TTSVoice == "" {
		c.TTSVoice = def.TTSVoice
	}
	if c.QueueCeiling <= 0 {
		c.QueueCeiling = def.QueueCeiling
	}
	if c.QueueStaleness <= 0 {
		c.QueueStaleness = def.QueueStaleness
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = def.CacheCapacity
	}
	if c.ChatAttempts <= 0 {
		c.ChatAttempts = def.ChatAttempts
	}
	if c.ChatBaseDelay <= 0 {
		c.ChatBaseDelay = def.ChatBaseDelay
	}
	if c.ChatDeadline <= 0 {
		c.ChatDeadline = def.ChatDeadline
	}
	if c.TTSAttempts <= 0 {
		c.TTSAttempts = def.TTSAttempts
	}
	if c.TTSBaseDelay <= 0 {
		c.TTSBaseDelay = def.TTSBaseDelay
	}
	if c.TTSDeadline <= 0 {
		c.TTSDeadline = def.TTSDeadline
	}
	if c.TTSMaxInputChars <= 0 {
		c.TTSMaxInputChars = def.TTSMaxInputChars
	}
	if c.STTAttemptsPerFormat <= 0 {
		c.STTAttemptsPerFormat = def.STTAttemptsPerFormat
	}
	if c.STTBaseDelay <= 0 {
		c.STTBaseDelay = def.STTBaseDelay
	}
	if c.STTDeadline <= 0 {
		c.STTDeadline = def.STTDeadline
	}
	if c.STTMaxBytes <= 0 {
		c.STTMaxBytes = def.STTMaxBytes
	}
	if c.StatusDeadline <= 0 {
		c.StatusDeadline = def.StatusDeadline
	}
	if c.WarmUpDeadline <= 0 {
		c.WarmUpDeadline = def.WarmUpDeadline
	}
	return c
}

// Orchestrator is the request pipeline façade. Construct with New; the
// zero value is not usable.
type Orchestrator struct {
	cfg       Config
	resolver  *endpoints.Resolver
	cache     *cache.Cache
	queue     *queue.Queue
	transport *transport.Transport
	logger    *core.Logger

	// mu guards the settings UpdateConfig may change at runtime.
	mu       sync.RWMutex
	ttsModel string
	ttsVoice string
}

// New wires an Orchestrator from config.
func New(cfg Config, logger *core.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = core.GetLogger()
	}
	var store *endpoints.OverrideStore
	if cfg.OverridePath != "" {
		store = endpoints.NewOverrideStore(cfg.OverridePath)
	}
	resolver := endpoints.NewResolver(cfg.Host, cfg.Secure, store, logger)
	for svc, url := range cfg.Endpoints {
		resolver.SetOverride(svc, url)
	}
	return &Orchestrator{
		cfg:       cfg,
		resolver:  resolver,
		cache:     cache.New(cfg.CacheTTL, cfg.CacheCapacity),
		queue:     queue.New(cfg.QueueCeiling, cfg.QueueStaleness, logger),
		transport: transport.New(logger),
		logger:    logger.With(map[string]interface{}{"component": "orchestrator"}),
		ttsModel:  cfg.TTSModel,
		ttsVoice:  cfg.TTSVoice,
	}
}

// ConfigUpdate is an incremental configuration change pushed in from
// outside (the control plane, a settings form). Only non-zero fields are
// applied.
type ConfigUpdate struct {
	Endpoints map[core.Service]string
	TTSModel  string
	TTSVoice  string
}

// UpdateConfig applies an incremental update. Endpoint changes take effect
// on the next resolved call; in-flight calls are not disturbed.
func (o *Orchestrator) UpdateConfig(update ConfigUpdate) {
	for svc, url := range update.Endpoints {
		o.resolver.SetOverride(svc, url)
		o.logger.Info("endpoint override updated", "service", string(svc), "url", url)
	}
	o.mu.Lock()
	if update.TTSModel != "" {
		o.ttsModel = update.TTSModel
	}
	if update.TTSVoice != "" {
		o.ttsVoice = update.TTSVoice
	}
	o.mu.Unlock()
}

// ttsSettings returns the current synthesis model and voice.
func (o *Orchestrator) ttsSettings() (model, voice string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ttsModel, o.ttsVoice
}

// CancelAll aborts every in-flight call. Queued-but-unadmitted calls are
// unaffected and will run when slots free up; callers that want a full
// stop cancel their contexts as well.
func (o *Orchestrator) CancelAll() {
	o.transport.CancelAll()
}

// Stats is a snapshot of pipeline load, reported over the control plane.
type Stats struct {
	ActiveCalls  int `json:"active_calls"`
	QueuedCalls  int `json:"queued_calls"`
	CacheEntries int `json:"cache_entries"`
}

// Endpoint reports the base URL the named service currently resolves to.
func (o *Orchestrator) Endpoint(service core.Service) string {
	return o.resolver.Resolve(service)
}

// Snapshot returns current pipeline load.
func (o *Orchestrator) Snapshot() Stats {
	return Stats{
		ActiveCalls:  o.queue.Active(),
		QueuedCalls:  o.queue.Waiting(),
		CacheEntries: o.cache.Len(),
	}
}

func transportPOST(body []byte) transport.Options {
	return transport.Options{Method: http.MethodPost, Body: body}
}

// callSpec shapes one pipeline pass: cache check, then per attempt a fresh
// queue admission, a fresh deadline, and a transport call.
type callSpec struct {
	url       string
	opts      transport.Options
	deadline  time.Duration
	attempts  int
	baseDelay time.Duration
	cacheKey  string // empty disables caching
}

// execute runs the pipeline for one spec. A retrying call does not hold
// its queue slot between attempts, so other queued operations may
// interleave with the backoff waits.
func (o *Orchestrator) execute(ctx context.Context, spec callSpec) ([]byte, error) {
	if spec.cacheKey != "" {
		if v, ok := o.cache.Get(spec.cacheKey); ok {
			if body, ok := v.([]byte); ok {
				return body, nil
			}
		}
	}

	body, err := transport.WithRetry(ctx, o.logger, func(attempt int) ([]byte, error) {
		release, err := o.queue.Admit(ctx)
		if err != nil {
			return nil, err
		}
		defer release()

		resp, err := o.transport.Call(ctx, spec.url, spec.opts, spec.deadline)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}, spec.attempts, spec.baseDelay)
	if err != nil {
		return nil, err
	}

	if spec.cacheKey != "" {
		o.cache.Put(spec.cacheKey, body)
	}
	return body, nil
}
