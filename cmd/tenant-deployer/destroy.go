// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/canonical/tenant-deployer/deployer"
	"github.com/canonical/tenant-deployer/environs"
)

// DestroyCommand tears down the deployment-local resources of a
// previous run. Shared tenant resources are left alone.
type DestroyCommand struct {
	ConfigPath   string
	DeploymentID string
}

func (c *DestroyCommand) Info() *Info {
	return &Info{
		Name:    "destroy",
		Args:    "-f <deployment.yaml> <deployment-id>",
		Purpose: "tear down a tenant deployment",
	}
}

func (c *DestroyCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.ConfigPath, "f", "", "path to the deployment configuration")
	f.StringVar(&c.ConfigPath, "file", "", "")
}

func (c *DestroyCommand) Init(args []string) error {
	if c.ConfigPath == "" {
		return errors.New("no deployment configuration specified")
	}
	if len(args) == 0 {
		return errors.New("no deployment id specified")
	}
	c.DeploymentID = args[0]
	return checkEmpty(args[1:])
}

func (c *DestroyCommand) Run() error {
	cfg, err := readConfig(c.ConfigPath)
	if err != nil {
		return errors.Trace(err)
	}
	ctx := context.Background()
	env, err := environs.Open(ctx, cfg)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(deployer.New(env, cfg).Destroy(ctx, c.DeploymentID))
}
