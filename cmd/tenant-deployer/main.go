// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// tenant-deployer provisions a single virtual machine per run against
// AWS, Azure or Google Compute Engine, together with the tenant's
// shared network and baseline firewall rules, which are created lazily
// by whichever deployment gets there first.
package main

import (
	"fmt"
	"os"

	"github.com/juju/loggo/v2"

	// Register the cloud providers.
	_ "github.com/canonical/tenant-deployer/provider/azure"
	_ "github.com/canonical/tenant-deployer/provider/ec2"
	_ "github.com/canonical/tenant-deployer/provider/gce"
)

var logger = loggo.GetLogger("deployer.cmd")

func commands() []Command {
	return []Command{
		&DeployCommand{},
		&DestroyCommand{},
	}
}

// Main dispatches to the named subcommand and returns the process exit
// code.
func Main(args []string) int {
	if spec := os.Getenv("DEPLOYER_LOGGING_CONFIG"); spec != "" {
		if err := loggo.ConfigureLoggers(spec); err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid logging config: %v\n", err)
			return 2
		}
	}
	if len(args) < 2 {
		usage()
		return 2
	}
	for _, c := range commands() {
		if c.Info().Name != args[1] {
			continue
		}
		if err := parse(c, args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		if err := c.Run(); err != nil {
			logger.Errorf("%s failed: %v", c.Info().Name, err)
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: unrecognised command %q\n", args[1])
	usage()
	return 2
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tenant-deployer <command> ...")
	fmt.Fprintln(os.Stderr, "commands:")
	for _, c := range commands() {
		fmt.Fprintf(os.Stderr, "    %-10s %s\n", c.Info().Name, c.Info().Purpose)
	}
}

func main() {
	os.Exit(Main(os.Args))
}
