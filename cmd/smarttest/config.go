package smarttest

import (
	"fmt"
	"io"
	"strings"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configSuite string
	configKey   string
	configSet   []string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect suite configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration of a suite",
	Long: `Print the effective configuration of a suite: defaults, the suite file,
environment variables and any --set overrides, with secrets masked.

Examples:
  smarttest config show -s shop
  smarttest config show -s shop --key browser.timeout
  smarttest config show -s shop --set browser.headless=true`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := config.ParseOverrides(configSet)
		if err != nil {
			return err
		}
		_, cfg, err := loadSuite(configSuite, overrides)
		if err != nil {
			return err
		}
		return showConfig(cmd.OutOrStdout(), cfg.Redacted(), configKey)
	},
}

func init() {
	configShowCmd.Flags().StringVarP(&configSuite, "suite", "s", "", "Suite to inspect")
	configShowCmd.Flags().StringVar(&configKey, "key", "", "Dotted path of a single value")
	configShowCmd.Flags().StringArrayVar(&configSet, "set", nil, "Override a config value (key=value, repeatable)")
	_ = configShowCmd.MarkFlagRequired("suite")
	configCmd.AddCommand(configShowCmd)
}

// showConfig prints tree, or the value at key, as YAML.
func showConfig(w io.Writer, tree map[string]any, key string) error {
	var v any = tree
	if key != "" {
		var ok bool
		if v, ok = lookup(tree, key); !ok {
			return fmt.Errorf("key %q not found", key)
		}
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func lookup(tree map[string]any, key string) (any, bool) {
	var cur any = tree
	for _, seg := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}
