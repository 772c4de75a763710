package detector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristic_Challenged_EmptyBody(t *testing.T) {
	t.Parallel()

	require.False(t, NewHeuristic(0).Challenged(nil))
}

func TestHeuristic_Challenged_Markers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	bodies := []string{
		`<html><head><title>Just a moment...</title></head></html>`,
		`<title>Attention Required! | Cloudflare</title>`,
		`<form id="challenge-form" action="/?__cf_chl_f_tk=abc"></form>`,
		`<script src="/cdn-cgi/challenge-platform/h/b/orchestrate/jsch/v1"></script>`,
		`<div class="g-recaptcha" data-sitekey="x">CAPTCHA</div>`,
	}
	for _, body := range bodies {
		require.True(t, h.Challenged([]byte(body)), body)
	}
}

func TestHeuristic_Challenged_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.Challenged([]byte(`<html><script>var a=1;</script><p>t</p></html>`)))
	require.False(t, h.Challenged([]byte(`<html><body><p>maintenance, back soon</p></body></html>`)))
}

func TestHeuristic_Challenged_LargeScriptHeavyPageIsNotChallenge(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	body := "<html><script>" + strings.Repeat("x", 500) + "</script></html>"
	require.False(t, h.Challenged([]byte(body)))
}

func TestHeuristic_Challenged_StockPage(t *testing.T) {
	t.Parallel()

	body, err := os.ReadFile(filepath.Join("..", "extract", "testdata", "stock.html"))
	require.NoError(t, err)
	require.False(t, NewHeuristic(0).Challenged(body))
}

func TestScriptDensity_UnclosedTag(t *testing.T) {
	t.Parallel()

	require.True(t, scriptDensityHigh([]byte(`<p>a</p><script`)))
	require.False(t, scriptDensityHigh([]byte(`<p>no scripts here</p>`)))
}
