package memory

import (
	"voicebridge/core"
	"voicebridge/utils/text"
)

// Scoring weights. A turn starts at the base, earns length bonuses at two
// thresholds, half a point per important keyword, a bonus for user turns
// (the user's own words anchor the conversation better than generated
// text), and a flat recency bonus every turn gets at creation. The decay in
// prune.go erodes that head start over time.
const (
	scoreBase          = 1.0
	scoreLengthBonus   = 0.5
	scoreLengthShort   = 80
	scoreLengthLong    = 240
	scoreKeywordWeight = 0.5
	scoreUserBonus     = 1.0
	scoreRecencyBonus  = 0.5
)

// score computes the importance of a freshly sanitized turn.
func (m *Manager) score(role core.Role, content string) float64 {
	s := scoreBase
	n := len([]rune(content))
	if n > scoreLengthShort {
		s += scoreLengthBonus
	}
	if n > scoreLengthLong {
		s += scoreLengthBonus
	}
	s += scoreKeywordWeight * float64(text.CountImportantKeywords(content))
	if role == core.RoleUser {
		s += scoreUserBonus
	}
	s += scoreRecencyBonus
	if s > m.cfg.MaxImportance {
		s = m.cfg.MaxImportance
	}
	return s
}
