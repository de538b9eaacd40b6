package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfigs() map[string]any {
	return map[string]any{
		"learning_rate": map[string]any{"type": "float", "min": 0.0001, "max": 0.1, "log": true},
		"batch_size":    map[string]any{"type": "choice", "values": []any{16, 32, 64}},
		"epochs":        map[string]any{"type": "int", "min": 5, "max": 20},
		"dropout":       map[string]any{"type": "float", "min": 0.0, "max": 0.5},
		"optimizer":     "adam",
	}
}

func TestRandom_RespectsBounds(t *testing.T) {
	s, err := NewRandom(testConfigs(), 42)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		hp, err := s.SuggestNext()
		require.NoError(t, err)

		lr := hp["learning_rate"].(float64)
		assert.GreaterOrEqual(t, lr, 0.0001)
		assert.LessOrEqual(t, lr, 0.1)

		assert.Contains(t, []any{16, 32, 64}, hp["batch_size"])

		epochs := hp["epochs"].(int64)
		assert.GreaterOrEqual(t, epochs, int64(5))
		assert.LessOrEqual(t, epochs, int64(20))

		dropout := hp["dropout"].(float64)
		assert.GreaterOrEqual(t, dropout, 0.0)
		assert.LessOrEqual(t, dropout, 0.5)

		assert.Equal(t, "adam", hp["optimizer"])
	}
}

func TestRandom_SeedIsDeterministic(t *testing.T) {
	a, err := NewRandom(testConfigs(), 7)
	require.NoError(t, err)
	b, err := NewRandom(testConfigs(), 7)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		ha, _ := a.SuggestNext()
		hb, _ := b.SuggestNext()
		assert.Equal(t, ha, hb)
	}
}

func TestRandom_AvoidsRecentRepeats(t *testing.T) {
	s, err := NewRandom(map[string]any{
		"units": map[string]any{"type": "choice", "values": []any{8, 16}},
	}, 1)
	require.NoError(t, err)

	seen := make(map[any]bool)
	for i := 0; i < 2; i++ {
		hp, err := s.SuggestNext()
		require.NoError(t, err)
		seen[hp["units"]] = true
	}
	assert.Len(t, seen, 2)
}

func TestRandom_ConstantOnlySpaceStillSuggests(t *testing.T) {
	s, err := NewRandom(map[string]any{"optimizer": map[string]any{"type": "constant", "value": "sgd"}}, 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		hp, err := s.SuggestNext()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"optimizer": "sgd"}, hp)
	}
}

func TestParseConfigs_Errors(t *testing.T) {
	cases := map[string]map[string]any{
		"empty":         {},
		"empty choice":  {"a": map[string]any{"type": "choice", "values": []any{}}},
		"missing bound": {"a": map[string]any{"type": "int", "min": 1}},
		"inverted":      {"a": map[string]any{"type": "float", "min": 2, "max": 1}},
		"log at zero":   {"a": map[string]any{"type": "float", "min": 0, "max": 1, "log": true}},
		"int fraction":  {"a": map[string]any{"type": "int", "min": 0.5, "max": 3}},
		"unknown type":  {"a": map[string]any{"type": "gaussian"}},
		"int overflow":  {"a": map[string]any{"type": "int", "min": -9.3e18, "max": 9.3e18}},
		"int too large": {"a": map[string]any{"type": "int", "min": 0, "max": 1e19}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfigs(cfg)
			assert.Error(t, err)
		})
	}
}

func TestRandom_WideIntRange(t *testing.T) {
	r, err := NewRandom(map[string]any{
		"n": map[string]any{"type": "int", "min": -(1 << 53), "max": 1 << 53},
	}, 3)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		params, err := r.SuggestNext()
		require.NoError(t, err)
		n := params["n"].(int64)
		assert.GreaterOrEqual(t, n, int64(-(1 << 53)))
		assert.LessOrEqual(t, n, int64(1<<53))
	}
}
