// ABOUTME: Tests for the recgate command helpers
// ABOUTME: Covers backend list and token flag parsing

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/recgate/internal/service"
)

func TestParseBackends(t *testing.T) {
	got, err := parseBackends(" 127.0.0.1:10150, backend-b:10160 ,")
	require.NoError(t, err)
	assert.Equal(t, []service.RemoteInfo{
		{Host: "127.0.0.1", Port: 10150},
		{Host: "backend-b", Port: 10160},
	}, got)

	_, err = parseBackends("nohost")
	assert.Error(t, err)
	_, err = parseBackends("h:0")
	assert.Error(t, err)
}

func TestParseTokenArgs(t *testing.T) {
	got, err := parseTokenArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.subject)
	assert.Equal(t, defaultTokenTTL, got.ttl)

	got, err = parseTokenArgs([]string{"--subject", "ops", "--ttl=2h"})
	require.NoError(t, err)
	assert.Equal(t, "ops", got.subject)
	assert.Equal(t, 2*time.Hour, got.ttl)

	for _, args := range [][]string{
		{"--subject"},
		{"--ttl", "soon"},
		{"--bogus"},
		{"extra"},
		{"--subject= "},
	} {
		_, err := parseTokenArgs(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv("RECGATE_CONFIG", "/etc/recgate/gw.toml")
	assert.Equal(t, "/etc/recgate/gw.toml", getConfigPath())

	t.Setenv("RECGATE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/recgate/gateway.yaml", getConfigPath())
}
