package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfolkes/portwarden/internal/discovery"
)

var (
	pingTimeout   time.Duration
	pingDNSServer string
)

// pingCmd represents the ping command.
var pingCmd = &cobra.Command{
	Use:   "ping <host>",
	Short: "Check whether a host is reachable",
	Long: `Check host reachability using an ICMP echo when permitted, falling
back to TCP probes against common ports. Hostnames are resolved first;
use --dns-server to resolve through a specific DNS server.`,
	Example: `  portwarden ping 192.168.1.10
  portwarden ping example.com --timeout 5s
  portwarden ping example.com --dns-server 8.8.8.8`,
	Args: cobra.ExactArgs(1),
	Run:  runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)

	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 3*time.Second, "reachability check timeout")
	pingCmd.Flags().StringVar(&pingDNSServer, "dns-server", "", "DNS server for hostname resolution")
}

func runPing(_ *cobra.Command, args []string) {
	host := args[0]

	opts := []discovery.Option{discovery.WithTimeout(pingTimeout)}
	if pingDNSServer != "" {
		opts = append(opts, discovery.WithDNSServer(pingDNSServer))
	}
	engine := discovery.NewEngine(opts...)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout*4)
	defer cancel()

	ip, err := engine.Resolve(ctx, host)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot resolve %s: %v\n", host, err)
		os.Exit(1)
	}
	if ip != host {
		fmt.Printf("%s resolves to %s\n", host, ip)
	}

	start := time.Now()
	if engine.IsReachable(ctx, host) {
		fmt.Printf("%s is reachable (%s)\n", host, time.Since(start).Round(time.Millisecond))
		return
	}

	fmt.Printf("%s is not reachable\n", host)
	os.Exit(1)
}
