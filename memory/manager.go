// Package memory keeps the conversation log bounded. Every turn is
// sanitized and scored for importance when it arrives; when the log crosses
// a pressure threshold, whole user/assistant pairs are pruned lowest
// age-decayed score first, never touching the most recent exchanges.
package memory

import (
	"sync"
	"time"

	"voicebridge/core"
	"voicebridge/utils/text"
)

// Config tunes the manager. The pruning thresholds were tuned empirically
// against real conversations; treat them as knobs, not constants.
type Config struct {
	// MaxMessages is the hard ceiling on stored messages.
	MaxMessages int
	// MaxChars bounds the total character count across all messages.
	MaxChars int
	// PressureRatio is the fraction of either maximum at which pruning
	// starts firing, before the hard ceiling is hit.
	PressureRatio float64
	// PruneCooldown is the minimum interval between pruning passes.
	PruneCooldown time.Duration
	// DecayHalfLife controls how fast a pair's importance fades with age.
	DecayHalfLife time.Duration
	// MaxPairsPerPass caps how many pairs a single pruning pass removes.
	MaxPairsPerPass int
	// ProtectedPairs is how many of the newest pairs are never removed,
	// regardless of score.
	ProtectedPairs int
	// MessageCharCap hard-truncates each message on arrival.
	MessageCharCap int
	// MaxImportance caps the computed importance score.
	MaxImportance float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessages:     40,
		MaxChars:        24000,
		PressureRatio:   0.8,
		PruneCooldown:   30 * time.Second,
		DecayHalfLife:   10 * time.Minute,
		MaxPairsPerPass: 2,
		ProtectedPairs:  3,
		MessageCharCap:  2000,
		MaxImportance:   10,
	}
}

// Message is a stored conversation turn. Seq is assigned on insertion and
// is never renumbered; after pruning, insertion order of the slice is the
// truth and Seq is merely a historical label.
type Message struct {
	Role       core.Role
	Content    string
	CreatedAt  time.Time
	Seq        int
	Importance float64
}

// Manager owns the conversation log. All methods are safe for concurrent
// use.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	messages  []Message
	nextSeq   int
	lastPrune time.Time
	onPrune   func(removed, remaining int)
	logger    *core.Logger
	now       func() time.Time
}

// NewManager creates a Manager with the given config. Zero-valued config
// fields fall back to the defaults.
func NewManager(cfg Config, logger *core.Logger) *Manager {
	def := DefaultConfig()
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.PressureRatio <= 0 || cfg.PressureRatio > 1 {
		cfg.PressureRatio = def.PressureRatio
	}
	if cfg.PruneCooldown <= 0 {
		cfg.PruneCooldown = def.PruneCooldown
	}
	if cfg.DecayHalfLife <= 0 {
		cfg.DecayHalfLife = def.DecayHalfLife
	}
	if cfg.MaxPairsPerPass <= 0 {
		cfg.MaxPairsPerPass = def.MaxPairsPerPass
	}
	if cfg.ProtectedPairs <= 0 {
		cfg.ProtectedPairs = def.ProtectedPairs
	}
	if cfg.MessageCharCap <= 0 {
		cfg.MessageCharCap = def.MessageCharCap
	}
	if cfg.MaxImportance <= 0 {
		cfg.MaxImportance = def.MaxImportance
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With(map[string]interface{}{"component": "memory"}),
		now:    time.Now,
	}
}

// SetPruneListener registers a callback invoked after every pruning pass
// that removed something, so dependent display state (turn counters) can
// resynchronize with the authoritative count. Called without the manager's
// lock held.
func (m *Manager) SetPruneListener(fn func(removed, remaining int)) {
	m.mu.Lock()
	m.onPrune = fn
	m.mu.Unlock()
}

// AddMessage sanitizes, scores, and appends a turn, then runs a pruning
// pass if the log is under pressure. The stored form is returned.
func (m *Manager) AddMessage(role core.Role, content string) Message {
	content = text.CollapseWhitespace(content)
	content = text.Truncate(content, m.cfg.MessageCharCap)

	m.mu.Lock()
	msg := Message{
		Role:       role,
		Content:    content,
		CreatedAt:  m.now(),
		Seq:        m.nextSeq,
		Importance: m.score(role, content),
	}
	m.nextSeq++
	m.messages = append(m.messages, msg)
	removed, remaining, fn := m.pruneIfNeededLocked()
	m.mu.Unlock()

	if removed > 0 && fn != nil {
		fn(removed, remaining)
	}
	return msg
}

// Context returns the retained turns in order, in the wire shape used to
// build the next chat request.
func (m *Manager) Context() []core.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.ChatMessage, len(m.messages))
	for i, msg := range m.messages {
		out[i] = core.ChatMessage{Role: msg.Role, Content: msg.Content}
	}
	return out
}

// Messages returns a copy of the stored turns with their metadata.
func (m *Manager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len returns the number of retained messages.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// CharCount returns the total character count across retained messages.
func (m *Manager) CharCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.charCountLocked()
}

// PruneIfNeeded runs a pruning pass (subject to the cooldown and pressure
// thresholds) and returns how many messages were removed.
func (m *Manager) PruneIfNeeded() int {
	m.mu.Lock()
	removed, remaining, fn := m.pruneIfNeededLocked()
	m.mu.Unlock()

	if removed > 0 && fn != nil {
		fn(removed, remaining)
	}
	return removed
}

func (m *Manager) charCountLocked() int {
	total := 0
	for _, msg := range m.messages {
		total += len([]rune(msg.Content))
	}
	return total
}
