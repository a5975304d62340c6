package rollback

import (
	"testing"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Order Tests
// =============================================================================

func TestOrder(t *testing.T) {
	tests := []struct {
		name     string
		config   []string
		deployed []string
		want     []string
	}{
		{
			name:     "config order filtered to deployed",
			config:   []string{"D", "C", "B", "A"},
			deployed: []string{"A", "B"},
			want:     []string{"B", "A"},
		},
		{
			name:     "unlisted services sorted after listed ones",
			config:   []string{"order", "auth"},
			deployed: []string{"zeta", "auth", "alpha", "order"},
			want:     []string{"order", "auth", "alpha", "zeta"},
		},
		{
			name:     "empty config",
			config:   nil,
			deployed: []string{"b", "a"},
			want:     []string{"a", "b"},
		},
		{
			name:     "nothing deployed",
			config:   []string{"a", "b"},
			deployed: nil,
			want:     []string{},
		},
		{
			name:     "duplicates collapsed",
			config:   []string{"a", "a", "b"},
			deployed: []string{"b", "a", "b"},
			want:     []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Order(tt.config, tt.deployed))
		})
	}
}

func TestOrder_DoesNotModifyInputs(t *testing.T) {
	config := []string{"D", "C", "B", "A"}
	deployed := []string{"A", "B"}

	Order(config, deployed)

	assert.Equal(t, []string{"D", "C", "B", "A"}, config)
	assert.Equal(t, []string{"A", "B"}, deployed)
}

// =============================================================================
// ReverseWaves Tests
// =============================================================================

func TestReverseWaves(t *testing.T) {
	waves := []domain.DeploymentWave{
		{WaveNumber: 1, Services: []string{"auth"}},
		{WaveNumber: 2, Services: []string{"menu", "payment"}},
		{WaveNumber: 3, Services: []string{"order"}},
	}

	assert.Equal(t, []string{"order", "payment", "menu", "auth"},
		ReverseWaves(waves, []string{"auth", "menu", "payment", "order"}))
	assert.Equal(t, []string{"menu", "auth"}, ReverseWaves(waves, []string{"auth", "menu"}))
	assert.Equal(t, []string{"auth", "stray"}, ReverseWaves(waves, []string{"stray", "auth"}))
}

func TestResolve(t *testing.T) {
	waves := []domain.DeploymentWave{
		{WaveNumber: 1, Services: []string{"a"}},
		{WaveNumber: 2, Services: []string{"b"}},
	}

	assert.Equal(t, []string{"a", "b"}, Resolve([]string{"a", "b"}, waves, []string{"a", "b"}))
	assert.Equal(t, []string{"b", "a"}, Resolve(nil, waves, []string{"a", "b"}))
}
