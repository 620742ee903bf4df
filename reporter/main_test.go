package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/tcreport/pkg/config"
	"github.com/itohio/tcreport/pkg/logging"
	"github.com/itohio/tcreport/pkg/report"
)

func TestUseMock_FillsCredentials(t *testing.T) {
	cfg := config.Default()
	useMock(cfg)

	assert.Equal(t, "mock", cfg.Sensor.Bus)
	assert.Equal(t, mockSSID, cfg.WiFi.SSID)
	assert.Equal(t, mockPassword, cfg.WiFi.Password)
}

func TestUseMock_KeepsConfiguredCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.WiFi.SSID = "workshop"
	useMock(cfg)

	assert.Equal(t, "workshop", cfg.WiFi.SSID)
	assert.Empty(t, cfg.WiFi.Password, "open network stays open")
}

func TestMockHardware_Associates(t *testing.T) {
	cfg := config.Default()
	useMock(cfg)

	settings, err := report.SettingsFrom(cfg)
	require.NoError(t, err)

	hw, err := openHardware(cfg, true, logging.NullLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { hw.Close() })

	link := newLink(cfg, hw, logging.NullLogger{})
	require.NoError(t, link.Associate(settings.SSID, settings.Password))
	require.NoError(t, link.AwaitAssociation(context.Background()))
	_, err = link.AwaitAddress(context.Background())
	require.NoError(t, err)
	assert.True(t, link.IfaceUp())
}
