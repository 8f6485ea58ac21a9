package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dimonb/cfgapp/internal/config"
	"github.com/dimonb/cfgapp/internal/fetch"
	"github.com/dimonb/cfgapp/internal/processor"
	"github.com/spf13/cobra"
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Expand a rule template to its final rule list.",
	Long: `Expand a rule template by fetching every RULE-SET and NETSET source it
references, aggregating the addresses into network blocks, and splicing the
results back into the template.

Remote fetch failures never abort the expansion; each failed source is
rendered as a comment marker in the output. The command fails only when the
template cannot be read or the output cannot be written.
`,
	Run: func(cmd *cobra.Command, args []string) {
		templatePath, _ := cmd.Flags().GetString("template")
		outputFile, _ := cmd.Flags().GetString("output")

		verbosePrintln("[VERBOSE] Verbose output enabled.")
		debugPrintln("[DEBUG] Debug output enabled.")

		settings, err := loadSettings()
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		startTime := time.Now()
		debugPrintlnf("[DEBUG] Starting expand command at %v\n", startTime)

		templateText, err := readTemplate(templatePath)
		if err != nil {
			log.Fatalf("Failed to read template %s: %v", templatePath, err)
		}
		verbosePrintlnf("[VERBOSE] Template loaded from %s (%d bytes)\n", templatePath, len(templateText))

		opts := expandOptions(cmd, settings)
		debugPrintlnf("[DEBUG] Aggregation options: %+v\n", opts)

		logger := setupLogger()
		client := fetch.NewClient()
		engine := processor.NewTemplateProcessor(client, opts, logger)

		result := engine.Process(context.Background(), templateText)

		verbosePrintlnf("[VERBOSE] Expansion finished in %v (%d bytes)\n", time.Since(startTime), len(result))

		var outputBuilder strings.Builder
		outputBuilder.WriteString(result)
		handleOutput(cmd, outputFile, &outputBuilder)
	},
}

// expandOptions derives processor options from the settings, with any flag
// set on the command line taking precedence.
func expandOptions(cmd *cobra.Command, settings *config.Settings) processor.Options {
	opts := processor.Options{
		IPv4BlockPrefix:    settings.IPv4BlockPrefix,
		IPv6BlockPrefix:    settings.IPv6BlockPrefix,
		EnableCompaction:   settings.EnableCompaction,
		CompactTargetMax:   settings.CompactTargetMax,
		CompactMinPrefixV4: settings.CompactMinPrefixV4,
		CompactMinPrefixV6: settings.CompactMinPrefixV6,
	}

	if cmd.Flags().Changed("ipv4-prefix") {
		opts.IPv4BlockPrefix, _ = cmd.Flags().GetInt("ipv4-prefix")
	}
	if cmd.Flags().Changed("ipv6-prefix") {
		opts.IPv6BlockPrefix, _ = cmd.Flags().GetInt("ipv6-prefix")
	}
	if cmd.Flags().Changed("compact") {
		opts.EnableCompaction, _ = cmd.Flags().GetBool("compact")
	}
	if cmd.Flags().Changed("compact-target-max") {
		opts.CompactTargetMax, _ = cmd.Flags().GetInt("compact-target-max")
	}
	if cmd.Flags().Changed("compact-min-prefix-v4") {
		opts.CompactMinPrefixV4, _ = cmd.Flags().GetInt("compact-min-prefix-v4")
	}
	if cmd.Flags().Changed("compact-min-prefix-v6") {
		opts.CompactMinPrefixV6, _ = cmd.Flags().GetInt("compact-min-prefix-v6")
	}

	return opts
}

// readTemplate loads the template from a file, or from stdin when the path
// is "-".
func readTemplate(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func handleOutput(cmd *cobra.Command, outputFile string, finalOutput *strings.Builder) {
	if outputFile != "" && outputFile != "-" {
		err := os.WriteFile(outputFile, []byte(finalOutput.String()), 0644)
		if err != nil {
			log.Fatalf("Error writing to output file %s: %v", outputFile, err)
		}
	} else {
		fmt.Print(finalOutput.String())
	}
}

func init() {
	expandCmd.Flags().String("template", "-", "Template file to expand, or - for stdin")
	expandCmd.Flags().String("output", "", "Write the expansion to a specified file instead of stdout")
	expandCmd.Flags().Int("ipv4-prefix", 0, "Override the IPv4 aggregation block prefix")
	expandCmd.Flags().Int("ipv6-prefix", 0, "Override the IPv6 aggregation block prefix")
	expandCmd.Flags().Bool("compact", false, "Override whether netset compaction is enabled")
	expandCmd.Flags().Int("compact-target-max", 0, "Override the compaction block budget")
	expandCmd.Flags().Int("compact-min-prefix-v4", 0, "Override the minimum IPv4 prefix for compaction")
	expandCmd.Flags().Int("compact-min-prefix-v6", 0, "Override the minimum IPv6 prefix for compaction")
}
