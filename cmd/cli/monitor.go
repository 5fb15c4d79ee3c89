// Package cli provides command-line interface commands for the portwarden
// port monitor. This file implements the monitor and history commands,
// which report on the daemon's monitoring state.
package cli

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mfolkes/portwarden/internal/api/handlers"
)

const monitorStatusLineLength = 40

var (
	historyLimit  int
	historyOutput string
)

// monitorCmd represents the monitor command group.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Control monitoring of individual hosts",
	Long: `Start or stop monitoring of a host, or show the daemon's overall
monitoring status. 'monitor start' and 'monitor stop' are equivalent to
'targets add' and 'targets remove'.`,
	Example: `  portwarden monitor start 192.168.1.10
  portwarden monitor stop 192.168.1.10
  portwarden monitor status`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// monitorStartCmd starts monitoring a host.
var monitorStartCmd = &cobra.Command{
	Use:   "start <host>",
	Short: "Start monitoring a host",
	Args:  cobra.ExactArgs(1),
	Run:   runTargetsAdd,
}

// monitorStopCmd stops monitoring a host.
var monitorStopCmd = &cobra.Command{
	Use:   "stop <host>",
	Short: "Stop monitoring a host",
	Args:  cobra.ExactArgs(1),
	Run:   runTargetsRemove,
}

// monitorStatusCmd shows overall monitoring status.
var monitorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's monitoring status",
	Run:   runMonitorStatus,
}

// historyCmd shows the change event history.
var historyCmd = &cobra.Command{
	Use:   "history [host]",
	Short: "Show change event history",
	Long: `Show recorded change events: ports opening, ports closing, and
service changes. Without a host the merged feed across all monitored
targets is shown, newest first.`,
	Example: `  portwarden history
  portwarden history 192.168.1.10
  portwarden history 192.168.1.10 --limit 20`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHistory,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.AddCommand(monitorStartCmd)
	monitorCmd.AddCommand(monitorStopCmd)
	monitorCmd.AddCommand(monitorStatusCmd)

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of events to show")
	historyCmd.Flags().StringVar(&historyOutput, "output", "table", "output format: table or json")
}

func runMonitorStatus(_ *cobra.Command, _ []string) {
	client := mustCreateAPIClient()

	var status handlers.StatusResponse
	if err := client.Get("/status", &status); err != nil {
		handleAPIError(err, "fetching status")
		os.Exit(1)
	}

	fmt.Println("Portwarden Monitoring Status")
	fmt.Println(strings.Repeat("=", monitorStatusLineLength))
	fmt.Printf("Monitoring:      %s\n", boolWord(status.Monitoring, "active", "stopped"))
	fmt.Printf("Targets:         %d\n", status.TargetCount)
	fmt.Printf("Open ports:      %d\n", status.TotalOpenPorts)
	fmt.Printf("Recorded events: %d\n", status.TotalEvents)
	fmt.Printf("Persistence:     %s\n", boolWord(status.DatabaseEnabled, "database", "in-memory"))
	fmt.Printf("Uptime:          %s\n", status.Uptime)
}

func runHistory(_ *cobra.Command, args []string) {
	client := mustCreateAPIClient()

	endpoint := fmt.Sprintf("/events?limit=%d", historyLimit)
	if len(args) == 1 {
		endpoint = fmt.Sprintf("/targets/%s/events?limit=%d", url.PathEscape(args[0]), historyLimit)
	}

	var feed handlers.EventFeedResponse
	if err := client.Get(endpoint, &feed); err != nil {
		handleAPIError(err, "fetching history")
		os.Exit(1)
	}

	// Persisted rows carry the host separately from the event payload.
	if len(args) == 1 {
		for i := range feed.Events {
			if feed.Events[i].Target == "" {
				feed.Events[i].Target = args[0]
			}
		}
	}

	if historyOutput == "json" {
		printJSON(feed)
		return
	}

	if feed.Count == 0 {
		fmt.Println("No change events recorded.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Target", "Kind", "Port", "Detail")

	for i := range feed.Events {
		ev := &feed.Events[i]
		_ = table.Append([]string{
			ev.Timestamp.Format("2006-01-02 15:04:05"),
			ev.Target,
			string(ev.Kind),
			fmt.Sprintf("%d", ev.Port),
			ev.Message,
		})
	}

	_ = table.Render()
}

func boolWord(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
