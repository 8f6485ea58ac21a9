package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dimonb/cfgapp/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// CLIConfig holds CLI flag values
type CLIConfig struct {
	ConfigPath string
	Debug      bool
	Verbose    bool
}

var cliConfig = &CLIConfig{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cfgapp",
	Short: "cfgapp expands rule templates and serves proxy configuration.",
	Long:  "A tool to expand RULE-SET templates with CIDR aggregation, generate proxy subscriptions, and serve both over HTTP.",
	Run: func(cmd *cobra.Command, args []string) {
		// Main CLI logic goes here (currently empty for root command)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cliConfig.ConfigPath, "config", "", "Path to configuration file (optional; defaults plus environment variables apply without one)")
	rootCmd.PersistentFlags().BoolVar(&cliConfig.Debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&cliConfig.Verbose, "verbose", false, "Enable verbose output")
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pingCmd)

	rootCmd.Version = config.Version
	rootCmd.SetHelpTemplate("cfgapp v" + config.Version + "\n\n{{.Long}}\n\nUsage:\n  {{.UseLine}}\n\nAvailable Commands:\n{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name \"help\"))}}  {{rpad .Name .NamePadding }} {{.Short}}\n{{end}}{{end}}\n\nFlags:\n{{.Flags.FlagUsages | trimTrailingWhitespaces}}\n\nUse \"{{.UseLine}} [command] --help\" for more information about a command.\n")
}

func Execute() {
	if err := godotenv.Load(); err != nil {
		debugPrintln("[DEBUG] No .env file found, using system environment variables.")
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings builds Settings from the configured file, the environment,
// and built-in defaults.
func loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(cliConfig.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

func setupLogger() *slog.Logger {
	if cliConfig.Debug {
		logLevel := new(slog.LevelVar)
		logLevel.Set(slog.LevelDebug)
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func debugPrintln(a ...interface{}) {
	if cliConfig.Debug {
		fmt.Println(a...)
	}
}

// verbosePrintln prints verbose messages when verbose mode is enabled
func verbosePrintln(a ...interface{}) {
	if cliConfig.Verbose {
		fmt.Println(a...)
	}
}

// verbosePrintlnf prints formatted verbose messages when verbose mode is enabled
func verbosePrintlnf(format string, a ...interface{}) {
	if cliConfig.Verbose {
		fmt.Printf(format, a...)
	}
}

// debugPrintlnf prints formatted debug messages when debug mode is enabled
func debugPrintlnf(format string, a ...interface{}) {
	if cliConfig.Debug {
		fmt.Printf(format, a...)
	}
}

func main() {
	Execute()
}
