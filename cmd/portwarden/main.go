// Command portwarden is the port scan monitor's entry point. All
// functionality lives in the cobra command tree under cmd/cli.
package main

import (
	"github.com/mfolkes/portwarden/cmd/cli"
)

// Build information set via ldflags:
//
//	go build -ldflags "-X main.version=... -X main.commit=... -X main.buildTime=..."
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
