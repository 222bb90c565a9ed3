// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"gopkg.in/yaml.v3"

	"github.com/canonical/tenant-deployer/deployer"
	"github.com/canonical/tenant-deployer/environs"
	"github.com/canonical/tenant-deployer/environs/config"
)

// DeployCommand provisions one deployment: the shared tenant resources
// if they are missing, then the deployment-local subnet and machine.
type DeployCommand struct {
	ConfigPath string
}

func (c *DeployCommand) Info() *Info {
	return &Info{
		Name:    "deploy",
		Args:    "-f <deployment.yaml>",
		Purpose: "provision a tenant deployment",
	}
}

func (c *DeployCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.ConfigPath, "f", "", "path to the deployment configuration")
	f.StringVar(&c.ConfigPath, "file", "", "")
}

func (c *DeployCommand) Init(args []string) error {
	if c.ConfigPath == "" {
		return errors.New("no deployment configuration specified")
	}
	return checkEmpty(args)
}

// readConfig loads and validates a deployment configuration file.
func readConfig(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "reading deployment configuration")
	}
	var attrs map[string]interface{}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, errors.Annotate(err, "parsing deployment configuration")
	}
	cfg, err := config.New(attrs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func (c *DeployCommand) Run() error {
	cfg, err := readConfig(c.ConfigPath)
	if err != nil {
		return errors.Trace(err)
	}
	ctx := context.Background()
	env, err := environs.Open(ctx, cfg)
	if err != nil {
		return errors.Trace(err)
	}
	result, err := deployer.New(env, cfg).Deploy(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Printf("deployment:  %s\n", result.DeploymentID)
	fmt.Printf("network:     %s (%s)\n", result.Network.Name, result.Network.ID)
	fmt.Printf("subnet:      %s (%s)\n", result.Subnet.Name, result.Subnet.CIDR)
	fmt.Printf("instance:    %s (%s)\n", result.Instance.Name, result.Instance.ID)
	if result.Instance.PrivateAddress != "" {
		fmt.Printf("private-ip:  %s\n", result.Instance.PrivateAddress)
	}
	return nil
}
