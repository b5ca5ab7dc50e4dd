package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/nethalo/dumpchunk/internal/output"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dumpchunk",
	Short: "Split large SQL dumps into small, independently replayable chunks",
	Long: `dumpchunk splits a mysqldump file into chunk files of a bounded number of
INSERT statements. Every chunk carries its own session header and footer so it
can be replayed on its own, in any order, and retried after a failure.

It can also produce the dump (export), replay the chunks (import), check them
(verify) and inspect the target server (connect).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(); err != nil {
			return err
		}
		if f := viper.GetString("format"); !output.ValidFormat(f) {
			return fmt.Errorf("invalid --format %q (valid: %v)", f, output.Formats)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.dumpchunk/config.yaml)")
	rootCmd.PersistentFlags().StringP("host", "H", "", "MySQL host")
	rootCmd.PersistentFlags().IntP("port", "P", 3306, "MySQL port")
	rootCmd.PersistentFlags().StringP("user", "u", "", "MySQL user")
	rootCmd.PersistentFlags().StringP("password", "p", "", "MySQL password (prompts if empty)")
	rootCmd.PersistentFlags().Lookup("password").NoOptDefVal = ""
	rootCmd.PersistentFlags().String("password-file", "", "read the MySQL password from this file (must not be group/world readable)")
	rootCmd.PersistentFlags().String("defaults-file", "", "MySQL option file to read [client] settings from (default ~/.my.cnf when present)")
	rootCmd.PersistentFlags().StringP("database", "d", "", "database name")
	rootCmd.PersistentFlags().StringP("socket", "S", "", "Unix socket path")
	rootCmd.PersistentFlags().String("tls", "", "TLS mode: disabled, preferred, required, skip-verify, custom")
	rootCmd.PersistentFlags().String("tls-ca", "", "CA certificate for --tls=custom")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "output format: text, plain, json, markdown")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")

	for _, name := range []string{
		"host", "port", "user", "password", "password-file", "defaults-file",
		"database", "socket", "tls", "tls-ca", "format", "verbose", "log-format",
	} {
		bindFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

type flagBinding struct {
	key  string
	flag *pflag.Flag
}

var flagBindings []flagBinding

// bindFlag binds a flag to a viper key and remembers the binding so it can
// be restored after viper.Reset.
func bindFlag(key string, flag *pflag.Flag) {
	flagBindings = append(flagBindings, flagBinding{key: key, flag: flag})
	viper.BindPFlag(key, flag)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(filepath.Join(home, ".dumpchunk"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DUMPCHUNK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("split.chunk_size", 200)
	viper.SetDefault("split.rewrite_replace", false)
	viper.SetDefault("split.unrecognized", "keep")
	viper.SetDefault("import.retries", 3)
	viper.SetDefault("import.retry_delay", "5s")

	if err := viper.ReadInConfig(); err == nil {
		// Map config file connection to flat keys if flags weren't set
		mapConnectionDefaults()
	}
}

// mapConnectionDefaults copies connections.default.* onto the flat keys the
// commands read, unless the matching flag was given on the command line.
func mapConnectionDefaults() {
	keys := map[string]string{
		"host":          "connections.default.host",
		"port":          "connections.default.port",
		"user":          "connections.default.user",
		"database":      "connections.default.database",
		"socket":        "connections.default.socket",
		"password-file": "connections.default.password_file",
		"format":        "defaults.format",
	}
	for flag, key := range keys {
		if !viper.IsSet(key) {
			continue
		}
		if f := rootCmd.PersistentFlags().Lookup(flag); f != nil && f.Changed {
			continue
		}
		viper.Set(flag, viper.Get(key))
	}
}

func setupLogging() error {
	logrus.SetOutput(os.Stderr)
	switch viper.GetString("log-format") {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid --log-format %q (valid: text, json)", viper.GetString("log-format"))
	}
	if viper.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	return nil
}
