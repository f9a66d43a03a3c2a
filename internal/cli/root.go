// Package cli implements mixctl, a terminal client for the mix chat API.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "mixctl",
	Short: "Drive mix chat threads from the terminal",
	Long: `mixctl talks to an intellimix API server. It creates threads, sends
prompts and planning answers, and follows runs until they finish, using the
event stream when it can and polling when it cannot.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/mixctl/config.yaml)")
	flags.String("server", defaultServer, "API base URL")
	flags.String("token", "", "bearer token")
	flags.Duration("timeout", defaultTimeout, "per-request timeout")
	flags.Bool("no-push", false, "poll only; never open an event stream")
	flags.Duration("poll-interval", defaultPollInterval, "poll interval while following a run")
	flags.Bool("json", false, "print raw JSON responses")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("server", flags.Lookup("server"))
	_ = viper.BindPFlag("token", flags.Lookup("token"))
	_ = viper.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = viper.BindPFlag("no_push", flags.Lookup("no-push"))
	_ = viper.BindPFlag("poll_interval", flags.Lookup("poll-interval"))
	_ = viper.BindPFlag("json", flags.Lookup("json"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME/.config/mixctl")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MIXCTL")
	// MIXCTL_POLL_INTERVAL for poll_interval
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// A missing config file is fine.
	_ = viper.ReadInConfig()
}
