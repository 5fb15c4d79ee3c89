// Package cli provides command-line interface commands for the portwarden
// port monitor. This file implements target management against a running
// daemon.
package cli

import (
	"fmt"
	"net/url"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mfolkes/portwarden/internal"
	"github.com/mfolkes/portwarden/internal/api/handlers"
)

var targetsOutput string

// targetsCmd represents the targets command group.
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage monitored targets",
	Long: `Manage the hosts the portwarden daemon monitors. Adding a target
runs an immediate baseline scan and includes the host in every following
monitoring cycle. Removing a target discards its state.`,
	Example: `  portwarden targets list
  portwarden targets add 192.168.1.10
  portwarden targets add example.com
  portwarden targets remove 192.168.1.10`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// targetsListCmd lists monitored targets.
var targetsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List monitored targets",
	Run:     runTargetsList,
}

// targetsAddCmd adds a target.
var targetsAddCmd = &cobra.Command{
	Use:   "add <host>",
	Short: "Start monitoring a host",
	Args:  cobra.ExactArgs(1),
	Run:   runTargetsAdd,
}

// targetsRemoveCmd removes a target.
var targetsRemoveCmd = &cobra.Command{
	Use:     "remove <host>",
	Aliases: []string{"rm", "delete"},
	Short:   "Stop monitoring a host",
	Args:    cobra.ExactArgs(1),
	Run:     runTargetsRemove,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsAddCmd)
	targetsCmd.AddCommand(targetsRemoveCmd)

	targetsListCmd.Flags().StringVar(&targetsOutput, "output", "table", "output format: table or json")
}

func runTargetsList(_ *cobra.Command, _ []string) {
	client := mustCreateAPIClient()

	var resp handlers.TargetListResponse
	if err := client.Get("/targets", &resp); err != nil {
		handleAPIError(err, "listing targets")
		os.Exit(1)
	}

	if targetsOutput == "json" {
		printJSON(resp)
		return
	}

	if resp.Count == 0 {
		fmt.Println("No targets are being monitored.")
		fmt.Println("Add one with 'portwarden targets add <host>'.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Host", "Open Ports", "Ports", "Events", "Monitoring Since")

	for i := range resp.Targets {
		t := &resp.Targets[i]
		_ = table.Append([]string{
			t.ID,
			fmt.Sprintf("%d", t.OpenPorts),
			internal.FormatPortList(t.LastSnapshot.OpenPorts()),
			fmt.Sprintf("%d", t.EventCount),
			t.MonitoringSince.Format("2006-01-02 15:04:05"),
		})
	}

	_ = table.Render()
}

func runTargetsAdd(_ *cobra.Command, args []string) {
	host := args[0]
	client := mustCreateAPIClient()

	var resp handlers.TargetResponse
	if err := client.Post("/targets", handlers.AddTargetRequest{Host: host}, &resp); err != nil {
		handleAPIError(err, "adding target")
		os.Exit(1)
	}

	fmt.Printf("Now monitoring %s\n", resp.Target.ID)
	ports := resp.Target.LastSnapshot.OpenPorts()
	if len(ports) > 0 {
		fmt.Printf("Baseline scan found %d open ports: %s\n",
			len(ports), internal.FormatPortList(ports))
	} else {
		fmt.Println("Baseline scan found no open ports")
	}
}

func runTargetsRemove(_ *cobra.Command, args []string) {
	host := args[0]
	client := mustCreateAPIClient()

	if err := client.Delete("/targets/" + url.PathEscape(host)); err != nil {
		handleAPIError(err, "removing target")
		os.Exit(1)
	}

	fmt.Printf("Stopped monitoring %s\n", host)
}
