package vetting

import (
	"fmt"
	"strings"
)

// majority is the number of agreeing votes needed for a definite verdict.
const majority = 2

// FusionSummary records how the final verdict was reached.
type FusionSummary struct {
	Malicious    int    `json:"malicious"`
	Benign       int    `json:"benign"`
	Inconclusive int    `json:"inconclusive"`
	Reason       string `json:"reason"`
}

// Fuse combines the four votes by unweighted majority: two malicious votes
// win, otherwise two benign votes win, otherwise the URL is suspicious.
// Unknown, error and suspicious votes count toward neither side.
func Fuse(votes Votes) (Vote, FusionSummary) {
	var summary FusionSummary
	var maliciousFrom, benignFrom []string

	for _, nv := range votes.named() {
		switch nv.vote {
		case VoteMalicious:
			summary.Malicious++
			maliciousFrom = append(maliciousFrom, nv.source)
		case VoteBenign:
			summary.Benign++
			benignFrom = append(benignFrom, nv.source)
		default:
			summary.Inconclusive++
		}
	}

	final := VoteSuspicious
	if summary.Malicious >= majority {
		final = VoteMalicious
	} else if summary.Benign >= majority {
		final = VoteBenign
	}

	summary.Reason = buildReason(final, maliciousFrom, benignFrom)
	return final, summary
}

func buildReason(final Vote, maliciousFrom, benignFrom []string) string {
	switch final {
	case VoteMalicious:
		return fmt.Sprintf("%d of 4 sources report malicious: %s", len(maliciousFrom), strings.Join(maliciousFrom, ", "))
	case VoteBenign:
		return fmt.Sprintf("%d of 4 sources report benign: %s", len(benignFrom), strings.Join(benignFrom, ", "))
	}

	if len(maliciousFrom) == 0 && len(benignFrom) == 0 {
		return "no source gave a definite answer"
	}
	parts := []string{}
	if len(maliciousFrom) > 0 {
		parts = append(parts, "malicious: "+strings.Join(maliciousFrom, ", "))
	}
	if len(benignFrom) > 0 {
		parts = append(parts, "benign: "+strings.Join(benignFrom, ", "))
	}
	return "no majority (" + strings.Join(parts, "; ") + ")"
}
