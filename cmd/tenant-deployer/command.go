// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
)

// Info describes a Command's intent and usage.
type Info struct {
	// Name is the Command's name.
	Name string

	// Args describes the command's expected arguments.
	Args string

	// Purpose is a short explanation of the Command's purpose.
	Purpose string
}

// Usage combines Name and Args to describe intended usage.
func (i *Info) Usage() string {
	return fmt.Sprintf("%s %s", i.Name, i.Args)
}

// Command is implemented by the tenant-deployer subcommands.
type Command interface {
	// Info returns information about the command.
	Info() *Info

	// SetFlags prepares a FlagSet such that parsing it initialises
	// the command's options.
	SetFlags(f *gnuflag.FlagSet)

	// Init is called after flag parsing with the remaining
	// positional arguments.
	Init(args []string) error

	// Run executes the command.
	Run() error
}

// printUsage prints usage information for c to stderr.
func printUsage(c Command, f *gnuflag.FlagSet) {
	i := c.Info()
	fmt.Fprintf(os.Stderr, "usage: tenant-deployer %s\n", i.Usage())
	fmt.Fprintf(os.Stderr, "purpose: %s\n", i.Purpose)
	fmt.Fprintf(os.Stderr, "\noptions:\n")
	f.PrintDefaults()
}

// parse parses args on c. It must be called before c is Run.
func parse(c Command, args []string) error {
	f := gnuflag.NewFlagSet(c.Info().Name, gnuflag.ContinueOnError)
	f.Usage = func() { printUsage(c, f) }
	c.SetFlags(f)
	if err := f.Parse(true, args); err != nil {
		return errors.Trace(err)
	}
	return c.Init(f.Args())
}

// checkEmpty returns an error if args is not empty.
func checkEmpty(args []string) error {
	if len(args) != 0 {
		return errors.Errorf("unrecognised args: %s", strings.Join(args, " "))
	}
	return nil
}
