package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitvm-labs/bitvmd/config"
)

func TestDefaultConfigMatchesReferenceValues(t *testing.T) {
	cfg := config.DefaultConfig()
	require.Equal(t, int64(500), cfg.FeeSat)
	require.Equal(t, int64(546), cfg.DustSat)
	require.Equal(t, 10, cfg.BisectionLength)
}

func TestLadderParamsMatchesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	p := cfg.LadderParams()
	require.Equal(t, cfg.FeeSat, p.FeeSat)
	require.Equal(t, cfg.DustSat, p.DustSat)
}
