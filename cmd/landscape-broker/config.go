package main

import (
	"github.com/spf13/cobra"

	"github.com/canonical/landscape-client-sub002/cli"
	"github.com/canonical/landscape-client-sub002/config"
	"github.com/canonical/landscape-client-sub002/errors"
)

// loadConfig resolves the broker's configuration for cmd: defaults, the
// file named by --config (or the fallback search locations), the
// LANDSCAPE_ environment, and cmd's own flags, in increasing precedence.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := cli.SetupCommandParams(cmd, brokerParams()); err != nil {
		return config.Config{}, errors.Wrap(err, "failed to register configuration flags")
	}

	locations := configLocations
	if explicit, _ := cmd.Flags().GetString("config"); explicit != "" {
		locations = []string{explicit}
	}

	cfg, err := config.Load(locations, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ExportProxies(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
