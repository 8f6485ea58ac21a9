package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dimonb/cfgapp/internal/fetch"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test that the configured origin hosts are reachable.",
	Long: `Test reachability of the origin hosts named in the configuration.

This command loads the settings, then sends a request to each configured
origin host over HTTPS. It reports the response status or the transport
error for each host, helping you verify the forwarding target before
starting the server.
`,
	Run: func(cmd *cobra.Command, args []string) {
		outputFile, _ := cmd.Flags().GetString("output")
		var outputBuilder strings.Builder

		startTime := time.Now()

		debugPrintlnf("[DEBUG] Starting ping command at %v\n", startTime)
		debugPrintln("[DEBUG] Loading settings from:", cliConfig.ConfigPath)

		settings, err := loadSettings()
		if err != nil {
			outputBuilder.WriteString(fmt.Sprintf("Failed to load settings: %v\n", err))
			handleOutput(cmd, outputFile, &outputBuilder)
			log.Fatalf("Failed to load settings: %v", err)
		}

		hosts := originHosts(settings.APIHost, settings.AltHost)
		if len(hosts) == 0 {
			outputBuilder.WriteString("No origin hosts configured.\n")
			debugPrintln("[DEBUG] No origin hosts configured. Exiting.")
			handleOutput(cmd, outputFile, &outputBuilder)
			return
		}

		verbosePrintlnf("[VERBOSE] Testing reachability of %d hosts\n", len(hosts))

		client := fetch.NewClient()
		ctx := context.Background()

		successCount := 0
		failureCount := 0

		for i, host := range hosts {
			hostStartTime := time.Now()
			outputBuilder.WriteString(fmt.Sprintf("Pinging origin host: %s\n", host))

			verbosePrintlnf("[VERBOSE] [%d/%d] Requesting https://%s/\n", i+1, len(hosts), host)

			result, err := client.Fetch(ctx, "https://"+host+"/")
			hostDuration := time.Since(hostStartTime)

			if err != nil {
				msg := fmt.Sprintf("  Ping failed for %s: %v\n", host, err)
				outputBuilder.WriteString(msg)
				verbosePrintlnf("[VERBOSE] Ping failed for %s after %v: %v\n", host, hostDuration, err)
				failureCount++
				continue
			}

			debugPrintlnf("[DEBUG] Response from %s: status=%d, %d bytes\n",
				host, result.StatusCode, len(result.Body))

			msg := fmt.Sprintf("  Ping successful for %s! Responded %d in %v\n",
				host, result.StatusCode, hostDuration.Round(time.Millisecond))
			outputBuilder.WriteString(msg)
			successCount++
		}

		totalDuration := time.Since(startTime)

		outputBuilder.WriteString("\n=== Ping Summary ===\n")
		outputBuilder.WriteString(fmt.Sprintf("Total Hosts: %d\n", len(hosts)))
		outputBuilder.WriteString(fmt.Sprintf("Reachable: %d\n", successCount))
		outputBuilder.WriteString(fmt.Sprintf("Failed: %d\n", failureCount))
		outputBuilder.WriteString(fmt.Sprintf("Total Duration: %v\n", totalDuration))

		verbosePrintlnf("[VERBOSE] Ping command completed in %v\n", totalDuration)
		debugPrintlnf("[DEBUG] Final stats - Reachable: %d, Failed: %d, Total: %d\n",
			successCount, failureCount, len(hosts))

		handleOutput(cmd, outputFile, &outputBuilder)
	},
}

// originHosts returns the configured hosts with empty values and duplicates
// removed.
func originHosts(hosts ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, h := range hosts {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

func init() {
	pingCmd.Flags().String("output", "", "Write output to a specified file instead of stdout")
}
