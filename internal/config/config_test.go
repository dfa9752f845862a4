// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config_test

import (
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/go-blockwipe/internal/config"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Wipe.Passes)
	assert.True(t, cfg.Wipe.Verify)
	assert.Equal(t, 5, cfg.RepairBudget())
	assert.Contains(t, cfg.Discovery.SkipPrefixes, "zram")

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	memFs := afero.NewMemMapFs()

	require.NoError(t, afero.WriteFile(memFs, "/etc/blockwipe.yaml", []byte(`
wipe:
  passes: 3
  verify: false
  rate_limit: 104857600
logging:
  level: debug
  development: true
discovery:
  skip_prefixes: [loop]
`), 0o644))

	cfg, err := config.Load(memFs, "/etc/blockwipe.yaml")
	require.NoError(t, err)

	assert.Equal(t, config.Wipe{
		Passes:    3,
		Verify:    false,
		ChunkSize: 4 * 1024 * 1024,
		RateLimit: 100 * 1024 * 1024,
	}, cfg.Wipe)
	assert.Equal(t, 3, cfg.RepairBudget())
	assert.Equal(t, config.Logging{Level: "debug", Development: true}, cfg.Logging)
	assert.Equal(t, []string{"loop"}, cfg.Discovery.SkipPrefixes)

	cfg, err = config.Load(memFs, "")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	require.NoError(t, afero.WriteFile(memFs, "/empty.yaml", nil, 0o644))

	cfg, err = config.Load(memFs, "/empty.yaml")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string

		contents string

		expectedError string
	}{
		{
			name:          "zero passes",
			contents:      "wipe:\n  passes: 0\n",
			expectedError: "passes must be between 1 and 100, got 0",
		},
		{
			name:          "negative repair attempts",
			contents:      "wipe:\n  repair_attempts: -1\n",
			expectedError: "repair attempts must be between 0 and 100, got -1",
		},
		{
			name:          "huge chunk",
			contents:      "wipe:\n  chunk_size: 1073741824\n",
			expectedError: "chunk size must be between 1 and 268435456, got 1073741824",
		},
		{
			name:          "negative rate",
			contents:      "wipe:\n  rate_limit: -5\n",
			expectedError: "rate limit can't be negative, got -5",
		},
		{
			name:          "log level",
			contents:      "logging:\n  level: loud\n",
			expectedError: "invalid log level",
		},
		{
			name:          "empty prefix",
			contents:      "discovery:\n  skip_prefixes: [\"\"]\n",
			expectedError: "empty skip prefix",
		},
		{
			name:          "unknown field",
			contents:      "wipe:\n  pattern: random\n",
			expectedError: "field pattern not found",
		},
		{
			name:          "malformed",
			contents:      "wipe: [",
			expectedError: "failed to parse config file",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			memFs := afero.NewMemMapFs()

			require.NoError(t, afero.WriteFile(memFs, "/config.yaml", []byte(test.contents), 0o644))

			_, err := config.Load(memFs, "/config.yaml")
			require.Error(t, err)

			assert.ErrorContains(t, err, test.expectedError)
		})
	}

	t.Run("missing", func(t *testing.T) {
		t.Parallel()

		_, err := config.Load(afero.NewMemMapFs(), "/missing.yaml")
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("repair budget", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.Wipe.RepairAttempts = 9

		require.NoError(t, cfg.Validate())
		assert.Equal(t, 9, cfg.RepairBudget())
	})
}
