package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wp-fleet-manager/config"
	"wp-fleet-manager/remote"
)

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Check a site's companion plugin and API key",
	Long: `Run the same key validation and status read the dashboard performs and
print how the site's answers were classified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		rcfg, err := config.LoadRemoteConfig(configPath)
		if err != nil {
			return err
		}
		rc, err := remote.NewClient(args[0], key, remote.Options{
			Timeout:      rcfg.Timeout,
			MaxBodyBytes: rcfg.MaxBodyBytes,
			UserAgent:    rcfg.UserAgent,
		})
		if err != nil {
			return reportCheck(cmd.OutOrStdout(), err)
		}
		return runCheck(cmd, rc)
	},
}

func init() {
	checkCmd.Flags().String("key", "", "API key configured in the companion plugin")
	_ = checkCmd.MarkFlagRequired("key")
}

func runCheck(cmd *cobra.Command, rc *remote.Client) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Site: %s\n", rc.BaseURL())

	status, err := rc.ValidateAPIKey(cmd.Context())
	if err != nil {
		return reportCheck(out, err)
	}
	fmt.Fprintf(out, "Key:  %s\n", status)
	if status != remote.KeyValid {
		return fmt.Errorf("key check failed: %s", status)
	}

	info, err := rc.FetchStatus(cmd.Context())
	if err != nil {
		return reportCheck(out, err)
	}
	fmt.Fprintf(out, "Namespace: %s\n", info.Namespace)
	fmt.Fprintf(out, "WordPress: %s (PHP %s)\n", info.WordPressVersion, info.PHPVersion)
	fmt.Fprintf(out, "Plugins: %d  Themes: %d\n", info.PluginsCount, info.ThemesCount)
	fmt.Fprintln(out, "✓ Site is reachable and the key is accepted")
	return nil
}

func reportCheck(out io.Writer, err error) error {
	fmt.Fprintf(out, "✗ %s\n", remote.Describe(err))
	return err
}
