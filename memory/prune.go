package memory

import (
	"math"
	"sort"
	"time"

	"voicebridge/core"
)

// pair is a matched user/assistant exchange, identified by the indexes of
// its two messages in the log.
type pair struct {
	userIdx, asstIdx int
	decayed          float64
}

// pruneIfNeededLocked decides whether a pruning pass should fire and runs
// it. It returns the number of messages removed, the remaining count, and
// the registered listener so the caller can notify it outside the lock.
// Must be called with m.mu held.
//
// A pass fires when message count or total characters cross the pressure
// threshold, or the hard message ceiling is reached. Passes are rate
// limited by the cooldown window, except at the hard ceiling: the ceiling
// must never hold for longer than one pass regardless of cooldown.
func (m *Manager) pruneIfNeededLocked() (removed, remaining int, fn func(int, int)) {
	count := len(m.messages)
	chars := m.charCountLocked()
	atCeiling := count >= m.cfg.MaxMessages
	underPressure := float64(count) >= m.cfg.PressureRatio*float64(m.cfg.MaxMessages) ||
		float64(chars) >= m.cfg.PressureRatio*float64(m.cfg.MaxChars)

	if !underPressure && !atCeiling {
		return 0, count, nil
	}
	if !atCeiling && m.now().Sub(m.lastPrune) < m.cfg.PruneCooldown {
		return 0, count, nil
	}

	m.lastPrune = m.now()
	removed = m.pruneLocked()
	return removed, len(m.messages), m.onPrune
}

// pruneLocked removes the lowest-scoring removable pairs, at most
// MaxPairsPerPass of them. Only matched user/assistant pairs are ever
// removed; an unmatched half of an exchange stays. The newest
// ProtectedPairs pairs are exempt regardless of score. Must be called with
// m.mu held.
func (m *Manager) pruneLocked() int {
	pairs := m.pairsLocked()
	if len(pairs) <= m.cfg.ProtectedPairs {
		return 0
	}

	now := m.now()
	removable := pairs[:len(pairs)-m.cfg.ProtectedPairs]
	scored := make([]pair, len(removable))
	copy(scored, removable)
	for i := range scored {
		scored[i].decayed = m.decayedScoreLocked(scored[i], now)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].decayed < scored[j].decayed
	})

	limit := m.cfg.MaxPairsPerPass
	if limit > len(scored) {
		limit = len(scored)
	}

	drop := make(map[int]bool, limit*2)
	for _, p := range scored[:limit] {
		drop[p.userIdx] = true
		drop[p.asstIdx] = true
	}

	kept := m.messages[:0]
	for i, msg := range m.messages {
		if !drop[i] {
			kept = append(kept, msg)
		}
	}
	removed := len(m.messages) - len(kept)
	m.messages = kept

	if removed > 0 {
		m.logger.Info("pruned conversation log",
			"removed_messages", removed, "remaining", len(m.messages))
	}
	return removed
}

// pairsLocked scans the log for matched user/assistant exchanges: a user
// turn immediately followed by an assistant turn. System turns and
// unmatched halves are never part of a pair. Must be called with m.mu held.
func (m *Manager) pairsLocked() []pair {
	var pairs []pair
	for i := 0; i+1 < len(m.messages); i++ {
		if m.messages[i].Role != core.RoleUser {
			continue
		}
		if m.messages[i+1].Role != core.RoleAssistant {
			continue
		}
		pairs = append(pairs, pair{userIdx: i, asstIdx: i + 1})
		i++ // the assistant half is consumed
	}
	return pairs
}

// decayedScoreLocked averages a pair's importance and applies exponential
// decay over the configured half-life, aged from the pair's later message.
// Must be called with m.mu held.
func (m *Manager) decayedScoreLocked(p pair, now time.Time) float64 {
	base := (m.messages[p.userIdx].Importance + m.messages[p.asstIdx].Importance) / 2
	age := now.Sub(m.messages[p.asstIdx].CreatedAt)
	if age < 0 {
		age = 0
	}
	halfLives := float64(age) / float64(m.cfg.DecayHalfLife)
	return base * math.Exp2(-halfLives)
}
