package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"pomon/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	 _ __   ___  _ __ ___   ___  _ __
	| '_ \ / _ \| '_ ' _ \ / _ \| '_ \
	| |_) | (_) | | | | | | (_) | | | |
	| .__/ \___/|_| |_| |_|\___/|_| |_|
	|_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pomon",
	Short: "Watches a logistics portal for POs with suspicious ancillary fees.",
	Long: LOGO + `pomon logs into the Capstone logistics portal, periodically pulls PO/truck
and ancillary-fee data, and alerts once per PO whose badwood/restack/upstack
total exceeds the pallets received for its truck.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pomon.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".pomon")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.pomon.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("portal.username", "")
	viper.SetDefault("portal.password", "")
	viper.SetDefault("server.listen", ":3000")
	viper.SetDefault("server.auth.username", "")
	viper.SetDefault("server.auth.password", "")
	viper.SetDefault("email.recipient", "")
	viper.SetDefault("email.service", "")
	viper.SetDefault("email.user", "")
	viper.SetDefault("email.pass", "")
	viper.SetDefault("email.smtphost", "")
	viper.SetDefault("email.smtpport", 0)
	viper.SetDefault("email.smtpsecure", false)

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
