package main

import (
	"github.com/spf13/cobra"

	"github.com/canonical/landscape-client-sub002/cli"
)

// configLocations are the config file paths tried, in order, when
// --config is not set.
var configLocations = []string{
	"/etc/landscape/client.conf",
	"landscape-client.conf",
}

// brokerParams exposes part of the recognized option set as CLI flags: url,
// ping_url, account_name, computer_title, registration_password, tags,
// access_group, data_path and log_dir. ssl_public_key, the three interval
// options and the proxy pair have no flag. Flag names are dotted ("landscape.url") because cli/konf's pflag provider
// splits a flag's name on "." to build the nested key config.Load then
// unmarshals under the "landscape" prefix; see cli/konf/config_test.go.
func brokerParams() []cli.Param {
	return []cli.Param{
		{Name: "landscape.url", Usage: "message exchange server URL", ByDefault: ""},
		{Name: "landscape.ping_url", Usage: "ping server URL", ByDefault: ""},
		{Name: "landscape.account_name", Usage: "account name to register under", ByDefault: ""},
		{Name: "landscape.computer_title", Usage: "title this computer registers as", ByDefault: ""},
		{Name: "landscape.registration_password", Usage: "account registration password", ByDefault: ""},
		{Name: "landscape.tags", Usage: "tags to present at registration time", ByDefault: []string{}},
		{Name: "landscape.access_group", Usage: "access group to present at registration time", ByDefault: ""},
		{Name: "landscape.data_path", Usage: "directory holding persisted broker state", ByDefault: "/var/lib/landscape/broker"},
		{Name: "landscape.log_dir", Usage: "directory for log output", ByDefault: "/var/log/landscape"},
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "landscape-broker",
		Short:         "Client-side message exchange core for a Landscape-style management server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "", "configuration file to load")
	cmd.AddCommand(runCmd(), registerCmd(), statusCmd())
	return cmd
}
