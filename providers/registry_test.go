package providers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/parsemux/pkg/provider"
)

func TestDefaultOrder(t *testing.T) {
	require.Equal(t, []string{OpenAI, Gemini, Anthropic}, DefaultOrder())
}

func TestGet_KnownAndUnknown(t *testing.T) {
	d, ok := Get(OpenAI)
	require.True(t, ok)
	require.Equal(t, provider.ModeOpenAILike, d.Mode)

	_, ok = Get("nope")
	require.False(t, ok)
}

func TestCanonical_Aliases(t *testing.T) {
	require.Equal(t, Gemini, Canonical("google"))
	require.Equal(t, Gemini, Canonical("google-gemini"))
	require.Equal(t, OpenAI, Canonical("chatgpt"))
	require.Equal(t, Anthropic, Canonical("claude"))
	require.Equal(t, OpenAI, Canonical(OpenAI))
	require.Equal(t, "unknown", Canonical("unknown"))
}

func TestAdapter_AllModesRegistered(t *testing.T) {
	for _, d := range List() {
		p, ok := Adapter(d.Mode)
		require.True(t, ok, "missing adapter for %s", d.Mode)
		require.Equal(t, d.Mode, p.Mode())
	}
}

func TestSalts_Distinct(t *testing.T) {
	seen := make(map[[provider.SaltSize]byte]string)
	for _, d := range List() {
		if prev, dup := seen[d.Salt]; dup {
			t.Fatalf("salt shared between %s and %s", prev, d.ID)
		}
		seen[d.Salt] = d.ID
	}
}
