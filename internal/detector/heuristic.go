// Package detector recognises pages served in place of the real stock page.
package detector

import (
	"bytes"
	"errors"
)

// ErrChallengePage marks a page that looks like an anti-bot interstitial
// rather than the stock listing.
var ErrChallengePage = errors.New("upstream served a bot challenge page")

// Heuristic implements a handful of rule-based checks.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 4096
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var challengeMarkers = [][]byte{
	[]byte("cf-chl"),
	[]byte("challenge-platform"),
	[]byte("cf-browser-verification"),
	[]byte("just a moment..."),
	[]byte("attention required"),
	[]byte("checking your browser"),
	[]byte("captcha"),
}

// Challenged reports whether body looks like a block or challenge page. Small
// pages that are mostly script are treated as challenges too, since the stock
// page is server rendered.
func (h *Heuristic) Challenged(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return len(body) < h.BodyLengthThreshold && scriptDensityHigh(lower)
}

func scriptDensityHigh(lower []byte) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	var (
		openTag  = []byte("<script")
		closeTag = []byte("</script>")
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := bytes.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := bytes.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := bytes.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage*100/total >= 25
}
