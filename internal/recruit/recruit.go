// Package recruit chooses one specialist for a task via keyword scoring.
// Keyword routing is deliberately boring: every decision is auditable
// from the run log, and operators control priority through config order
// without code changes.
package recruit

import (
	"log/slog"
	"strings"

	"github.com/clawinfra/taskclaw/internal/config"
)

// Routing methods recorded in the recruitment runlog event.
const (
	MethodKeyword         = "keyword"
	MethodFallbackKeyword = "fallback_keyword"
	MethodDefault         = "default"
	MethodExplicit        = "explicit"
)

// engineeringFallback fires when no configured specialist scores: these
// generic building words still point clearly at engineering work.
var engineeringFallback = []string{"code", "build", "implement", "service", "pipeline", "deploy"}

// Decision is the recruiter's output.
type Decision struct {
	SpecialistID string
	Method       string
	Score        int
}

// Recruit picks a specialist id for the prompt. Scoring: one point per
// configured keyword occurring as a substring of the lowercased prompt.
// Ties resolve to the specialist listed first in config. A zero top
// score falls back to engineering when a hardcoded building keyword
// matches, else to research.
func Recruit(prompt string, specialists []config.SpecialistConfig, logger *slog.Logger) Decision {
	p := strings.ToLower(prompt)

	bestIdx := -1
	bestScore := 0
	for i, spec := range specialists {
		score := 0
		for _, kw := range spec.Keywords {
			if strings.Contains(p, strings.ToLower(kw)) {
				score++
			}
		}
		// Strictly greater: first-listed wins ties.
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx >= 0 && bestScore > 0 {
		id := specialists[bestIdx].ID
		logger.Debug("recruited specialist", "specialist", id, "method", MethodKeyword, "score", bestScore)
		return Decision{SpecialistID: id, Method: MethodKeyword, Score: bestScore}
	}

	for _, kw := range engineeringFallback {
		if strings.Contains(p, kw) {
			logger.Debug("recruited specialist", "specialist", "engineering", "method", MethodFallbackKeyword)
			return Decision{SpecialistID: "engineering", Method: MethodFallbackKeyword}
		}
	}

	logger.Debug("recruited specialist", "specialist", "research", "method", MethodDefault)
	return Decision{SpecialistID: "research", Method: MethodDefault}
}
