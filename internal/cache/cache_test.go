package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginmihq/ginmi/internal/model/contract"
)

func testEntry() Entry {
	return Entry{
		BaseURL: "https://api.example.com",
		Config:  contract.GenerateConfig{Temperature: contract.Float64(0.2)},
		Input:   []contract.ChatMessage{contract.UserMessage("hello")},
		Model:   "openai/gpt-4o",
		Policy:  DefaultPolicy(),
		ToolChoice: contract.ChooseAuto(),
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a, err := testEntry().Fingerprint()
	require.NoError(t, err)
	b, err := testEntry().Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_SensitiveToEveryField(t *testing.T) {
	base, err := testEntry().Fingerprint()
	require.NoError(t, err)

	mutations := map[string]func(*Entry){
		"config":      func(e *Entry) { e.Config.Temperature = contract.Float64(0.9) },
		"input":       func(e *Entry) { e.Input = []contract.ChatMessage{contract.UserMessage("other")} },
		"model":       func(e *Entry) { e.Model = "openai/gpt-4o-mini" },
		"base_url":    func(e *Entry) { e.BaseURL = "https://other.example.com" },
		"tool_choice": func(e *Entry) { e.ToolChoice = contract.ChooseNone() },
		"tools":       func(e *Entry) { e.Tools = []contract.ToolInfo{{Name: "search"}} },
		"scopes":      func(e *Entry) { e.Policy.Scopes = map[string]string{"epoch": "2"} },
	}

	for name, mutate := range mutations {
		entry := testEntry()
		mutate(&entry)
		got, err := entry.Fingerprint()
		require.NoError(t, err)
		assert.NotEqual(t, base, got, "mutating %s must change the fingerprint", name)
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()

	_, ok, err := store.Fetch("absent")
	require.NoError(t, err)
	assert.False(t, ok)

	output := contract.OutputFromContent("m", "cached")
	require.NoError(t, store.Put("key", output))

	got, ok, err := store.Fetch("key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cached", got.Completion())
}

func TestParseExpiry(t *testing.T) {
	cases := map[string]time.Duration{
		"":    0,
		"30s": 30 * time.Second,
		"15m": 15 * time.Minute,
		"12h": 12 * time.Hour,
		"3D":  3 * 24 * time.Hour,
		"1W":  7 * 24 * time.Hour,
		"2M":  60 * 24 * time.Hour,
		"1Y":  365 * 24 * time.Hour,
	}
	for spec, want := range cases {
		got, err := ParseExpiry(spec)
		require.NoError(t, err, spec)
		assert.Equal(t, want, got, spec)
	}

	for _, spec := range []string{"W", "10", "-1D", "1x", "oneweek"} {
		_, err := ParseExpiry(spec)
		assert.Error(t, err, spec)
	}
}
