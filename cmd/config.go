package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage dumpchunk configuration",
}

var configInitCmd = &cobra.Command{
	Use:          "init",
	Short:        "Create config file interactively",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		configDir := filepath.Join(home, ".dumpchunk")
		configPath := filepath.Join(configDir, "config.yaml")
		out := cmd.OutOrStdout()
		reader := bufio.NewReader(cmd.InOrStdin())

		ask := func(prompt, def string) string {
			if def != "" {
				fmt.Fprintf(out, "%s [%s]: ", prompt, def)
			} else {
				fmt.Fprintf(out, "%s: ", prompt)
			}
			answer, _ := reader.ReadString('\n')
			answer = strings.TrimSpace(answer)
			if answer == "" {
				return def
			}
			return answer
		}

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Config file already exists at %s\n", configPath)
			if strings.ToLower(ask("Overwrite? [y/N]", "")) != "y" {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}

		if err := os.MkdirAll(configDir, 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		fmt.Fprintln(out, "dumpchunk configuration setup")
		fmt.Fprintln(out, "─────────────────────────────")
		fmt.Fprintln(out)

		host := ask("MySQL host", "127.0.0.1")
		port := ask("MySQL port", "3306")
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid port %q", port)
		}
		user := ask("MySQL user", "dumpchunk")
		database := ask("Default database (optional)", "")
		passwordFile := ask("Password file (optional)", "")
		chunkSize := ask("Statements per chunk", strconv.Itoa(chunker.DefaultChunkSize))
		if n, err := strconv.Atoi(chunkSize); err != nil || n <= 0 {
			return fmt.Errorf("invalid chunk size %q", chunkSize)
		}
		format := ask("Default output format", "text")
		if !output.ValidFormat(format) {
			return fmt.Errorf("invalid format %q (valid: %v)", format, output.Formats)
		}

		var config strings.Builder
		config.WriteString("# dumpchunk configuration\n\n")

		config.WriteString("connections:\n")
		config.WriteString("  default:\n")
		config.WriteString(fmt.Sprintf("    host: %s\n", host))
		config.WriteString(fmt.Sprintf("    port: %s\n", port))
		config.WriteString(fmt.Sprintf("    user: %s\n", user))
		if passwordFile != "" {
			config.WriteString(fmt.Sprintf("    password_file: %s\n", passwordFile))
		} else {
			config.WriteString("    # password: omitted for security, will prompt\n")
		}
		if database != "" {
			config.WriteString(fmt.Sprintf("    database: %s\n", database))
		}

		config.WriteString("\nsplit:\n")
		config.WriteString(fmt.Sprintf("  chunk_size: %s\n", chunkSize))
		config.WriteString("  rewrite_replace: false\n")
		config.WriteString("  unrecognized: keep\n")

		config.WriteString("\nimport:\n")
		config.WriteString("  retries: 3\n")
		config.WriteString("  retry_delay: 5s\n")

		config.WriteString("\ndefaults:\n")
		config.WriteString(fmt.Sprintf("  format: %s\n", format))

		if err := os.WriteFile(configPath, []byte(config.String()), 0600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Fprintf(out, "\n✅ Config written to %s\n", configPath)

		if user != "root" {
			target := "*.*"
			if database != "" {
				target = database + ".*"
			}
			fmt.Fprintln(out, "\nRecommended: create a dedicated MySQL user for imports:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  CREATE USER '%s'@'%%' IDENTIFIED BY '<password>';\n", user)
			fmt.Fprintf(out, "  GRANT SELECT, INSERT, UPDATE, DELETE, CREATE, DROP, ALTER, INDEX, LOCK TABLES ON %s TO '%s'@'%%';\n", target, user)
			fmt.Fprintf(out, "  GRANT PROCESS, REPLICATION CLIENT ON *.* TO '%s'@'%%';\n", user)
			fmt.Fprintln(out)
		}

		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			fmt.Fprintln(out, "No config file found.")
			fmt.Fprintln(out, "Run 'dumpchunk config init' to create one.")
			return nil
		}

		fmt.Fprintf(out, "Config file: %s\n\n", configFile)

		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		fmt.Fprintln(out, string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
