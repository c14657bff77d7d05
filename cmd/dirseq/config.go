package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const configName = ".dirseq"

// loadConfig reads cfgFile, or ~/.dirseq.yaml when cfgFile is empty, and
// enables DIRSEQ_* environment overrides. A missing default config file is
// not an error.
func loadConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("DIRSEQ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func newConfigCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dirseq configuration",
		Long:  "Show, get, or set default option values. Config is stored in ~/.dirseq.yaml.",
		Example: `  dirseq config                                # show all config
  dirseq config set measure-type count          # count reads by default
  dirseq config set include-feature-id false    # drop the ID column
  dirseq config get measure-type                # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := loadConfig(v, *cfgFile); err != nil {
				return err
			}
			return runConfigShow(cmd, v)
		},
	}

	cmd.AddCommand(newConfigSetCmd(cfgFile))
	cmd.AddCommand(newConfigGetCmd(cfgFile))

	return cmd
}

func newConfigSetCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := loadConfig(v, *cfgFile); err != nil {
				return err
			}
			return runConfigSet(cmd, v, args[0], args[1])
		},
	}
}

func newConfigGetCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := loadConfig(v, *cfgFile); err != nil {
				return err
			}
			return runConfigGet(cmd, v, args[0])
		},
	}
}

func runConfigShow(cmd *cobra.Command, v *viper.Viper) error {
	settings := v.AllSettings()
	if len(settings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "# No configuration set. Config file: ~/.dirseq.yaml")
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func runConfigSet(cmd *cobra.Command, v *viper.Viper, key, value string) error {
	// Parse boolean-like values
	switch value {
	case "true", "yes", "on":
		v.Set(key, true)
	case "false", "no", "off":
		v.Set(key, false)
	default:
		v.Set(key, value)
	}

	// Ensure config file exists
	cfgFile := v.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, configName+".yaml")
	}

	if err := v.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(cmd *cobra.Command, v *viper.Viper, key string) error {
	val := v.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), val)
	return nil
}
