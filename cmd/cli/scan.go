package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfolkes/portwarden/internal"
)

var (
	scanPorts       string
	scanProfile     string
	scanTimeout     time.Duration
	scanConcurrency int
	scanDNSServer   string
	scanOutput      string
	scanJSON        bool
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan <host>",
	Short: "Run a one-shot port scan against a host",
	Long: `Scan a single host for open TCP ports and classify the services
behind them. The host may be an IP address or a resolvable hostname.

Ports can be given explicitly with --ports or by name with --profile.
The two flags are mutually exclusive; without either, the default port
set is scanned.`,
	Example: `  portwarden scan 192.168.1.10
  portwarden scan example.com --ports 22,80,443
  portwarden scan example.com --ports 1-1024 --timeout 5s
  portwarden scan 10.0.0.5 --profile web
  portwarden scan example.com --dns-server 8.8.8.8 --output results.json`,
	Args: cobra.ExactArgs(1),
	Run:  runScanCommand,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanPorts, "ports", "", "ports to scan: '80,443', '1-1000', or a mix")
	scanCmd.Flags().StringVar(&scanProfile, "profile", "", "named port profile (default, quick, full, web, database, mail)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "per-probe connect timeout (default 2s)")
	scanCmd.Flags().IntVar(&scanConcurrency, "concurrency", 0, "maximum concurrent probes (default 50)")
	scanCmd.Flags().StringVar(&scanDNSServer, "dns-server", "", "DNS server for hostname resolution (e.g. 8.8.8.8)")
	scanCmd.Flags().StringVar(&scanOutput, "output", "", "write results to a JSON file instead of stdout")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print results as JSON")

	scanCmd.MarkFlagsMutuallyExclusive("ports", "profile")
	scanCmd.MarkFlagsMutuallyExclusive("output", "json")
}

func runScanCommand(_ *cobra.Command, args []string) {
	scanConfig := internal.ScanConfig{
		Target:      args[0],
		Ports:       scanPorts,
		Profile:     scanProfile,
		Timeout:     scanTimeout,
		Concurrency: scanConcurrency,
		DNSServer:   scanDNSServer,
	}

	if verbose {
		fmt.Printf("Scan configuration: %+v\n", scanConfig)
	}

	result, err := internal.RunScan(&scanConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: scan failed: %v\n", err)
		os.Exit(1)
	}

	switch {
	case scanOutput != "":
		if err := internal.SaveResults(result, scanOutput); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to save results: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Results written to %s\n", scanOutput)
	case scanJSON:
		if err := internal.WriteResults(os.Stdout, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to encode results: %v\n", err)
			os.Exit(1)
		}
	default:
		internal.PrintResults(result)
	}
}
