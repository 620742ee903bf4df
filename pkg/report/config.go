//go:build !tinygo

package report

import (
	"fmt"
	"net/netip"

	"github.com/itohio/tcreport/pkg/config"
)

// SettingsFrom derives settings from a loaded configuration.
func SettingsFrom(cfg *config.Config) (Settings, error) {
	endpoint, err := netip.ParseAddrPort(cfg.Report.Endpoint)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid endpoint %q: %w", cfg.Report.Endpoint, err)
	}
	if !endpoint.Addr().Is4() {
		return Settings{}, fmt.Errorf("endpoint %s is not IPv4", endpoint)
	}
	if err := CheckPath(cfg.Report.Path); err != nil {
		return Settings{}, fmt.Errorf("%w: %q", err, cfg.Report.Path)
	}

	return Settings{
		SSID:           cfg.WiFi.SSID,
		Password:       cfg.WiFi.Password,
		Endpoint:       endpoint,
		Path:           cfg.Report.Path,
		FaultDelay:     cfg.Timing.FaultDelay,
		ReceiveTimeout: cfg.Timing.ReceiveTimeout,
		DrainPeriod:    cfg.Timing.DrainPeriod,
		PollInterval:   cfg.Timing.PollInterval,
	}, nil
}
