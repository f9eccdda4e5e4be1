package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbox/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Leaderboard struct {
			Addrs []string
			Pass  string
		}
	}

	Game struct {
		Categories      []string
		MaxCycles       int
		PointsThreshold int
		BaseDuration    time.Duration
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	p := writeFile(t, `
game:
  categories: [science, history]
  maxcycles: 3
  baseduration: 15s
`)

	tests := map[string]struct {
		opts    []config.Option
		arrange func(t *testing.T)
		assert  func(t *testing.T, c testConfig)
	}{
		"file values and defaults": {
			arrange: func(t *testing.T) {},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, int32(8080), c.HTTP.Port)
				assert.Equal(t, []string{"science", "history"}, c.Game.Categories)
				assert.Equal(t, 3, c.Game.MaxCycles)
				assert.Equal(t, 15*time.Second, c.Game.BaseDuration)
			},
		},

		"environment overrides file": {
			arrange: func(t *testing.T) {
				t.Setenv("GAME_MAXCYCLES", "5")
				t.Setenv("HTTP_PORT", "9090")
			},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, int32(9090), c.HTTP.Port)
				assert.Equal(t, 5, c.Game.MaxCycles)
			},
		},

		"comma separated slice and duration from environment": {
			arrange: func(t *testing.T) {
				t.Setenv("GAME_CATEGORIES", "arts,sports")
				t.Setenv("GAME_BASEDURATION", "1m30s")
			},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, []string{"arts", "sports"}, c.Game.Categories)
				assert.Equal(t, 90*time.Second, c.Game.BaseDuration)
			},
		},

		"prefixed environment": {
			opts: []config.Option{config.WithEnvPrefix("QUIZBOX")},
			arrange: func(t *testing.T) {
				t.Setenv("GAME_MAXCYCLES", "7")
				t.Setenv("QUIZBOX_GAME_MAXCYCLES", "9")
			},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, 9, c.Game.MaxCycles)
			},
		},

		"prefixed environment sets nested keys missing from file": {
			opts: []config.Option{config.WithEnvPrefix("QUIZBOX")},
			arrange: func(t *testing.T) {
				t.Setenv("QUIZBOX_REDIS_LEADERBOARD_PASS", "secret")
				t.Setenv("QUIZBOX_REDIS_LEADERBOARD_ADDRS", "a:6379,b:6379")
				t.Setenv("QUIZBOX_GAME_POINTSTHRESHOLD", "500")
				t.Setenv("QUIZBOX_HTTP_PORT", "9191")
			},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, "secret", c.Redis.Leaderboard.Pass)
				assert.Equal(t, []string{"a:6379", "b:6379"}, c.Redis.Leaderboard.Addrs)
				assert.Equal(t, 500, c.Game.PointsThreshold)
				assert.Equal(t, int32(9191), c.HTTP.Port)
				assert.Equal(t, 3, c.Game.MaxCycles)
			},
		},

		"defaults of nested keys missing from file": {
			arrange: func(t *testing.T) {},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, "changeme", c.Redis.Leaderboard.Pass)
				assert.Equal(t, 1000, c.Game.PointsThreshold)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tt.arrange(t)

			var c testConfig
			c.HTTP.Port = 8080
			c.Redis.Leaderboard.Pass = "changeme"
			c.Game.PointsThreshold = 1000

			require.NoError(t, config.Load(p, &c, tt.opts...))
			tt.assert(t, c)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c)
	assert.Error(t, err)
}
