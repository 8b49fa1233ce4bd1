package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/config"
	"solana-sniper/internal/discovery"
	"solana-sniper/internal/gateway"
)

func TestResolvePrograms(t *testing.T) {
	got := resolvePrograms([]string{"pumpfun", " Raydium ", "", "Custom1111"})
	assert.Equal(t, []string{discovery.PumpFun, discovery.RaydiumAMMV4, "Custom1111"}, got)
	assert.Empty(t, resolvePrograms(nil))
}

func TestGatewayFactory_Modes(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	gw, err := gatewayFactory(cfg, nil, zerolog.Nop())("http://localhost:8899")
	require.NoError(t, err)
	assert.IsType(t, &gateway.PaperGateway{}, gw)

	cfg.Mode = config.ModeLive
	gw, err = gatewayFactory(cfg, nil, zerolog.Nop())("http://localhost:8899")
	require.NoError(t, err)
	assert.IsType(t, &gateway.RPCGateway{}, gw)

	cfg.Gateway.Destination = "not-a-key"
	_, err = gatewayFactory(cfg, nil, zerolog.Nop())("http://localhost:8899")
	assert.Error(t, err)
}
