// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package ec2 provisions tenant deployments on AWS EC2. The shared
// tenant network maps to a VPC, baseline rules to a security group with
// ingress permissions, the deployment subnet to an EC2 subnet.
package ec2

import (
	"context"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/schema"

	"github.com/canonical/tenant-deployer/environs"
	"github.com/canonical/tenant-deployer/environs/config"
)

var logger = loggo.GetLogger("deployer.provider.ec2")

func init() {
	environs.RegisterProvider("ec2", environProvider{})
}

type environProvider struct{}

var providerInstance environProvider

var configFields = schema.Fields{
	"access-key": schema.String(),
	"secret-key": schema.String(),
}

var configDefaults = schema.Defaults{
	// Empty credentials fall back to the SDK's default chain
	// (environment, shared config, instance profile).
	"access-key": "",
	"secret-key": "",
}

type environConfig struct {
	*config.Config
	attrs map[string]interface{}
}

func (c *environConfig) accessKey() string { return c.attrs["access-key"].(string) }
func (c *environConfig) secretKey() string { return c.attrs["secret-key"].(string) }

func newConfig(cfg *config.Config) (*environConfig, error) {
	attrs, err := cfg.ValidateUnknownAttrs(configFields, configDefaults)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ecfg := &environConfig{cfg, attrs}
	if (ecfg.accessKey() == "") != (ecfg.secretKey() == "") {
		return nil, errors.NotValidf("access-key and secret-key must be set together")
	}
	return ecfg, nil
}

// Validate is part of the environs.Provider interface.
func (environProvider) Validate(cfg, old *config.Config) (*config.Config, error) {
	if _, err := newConfig(cfg); err != nil {
		return nil, errors.Annotate(err, "invalid EC2 provider config")
	}
	if old != nil {
		if err := config.Validate(cfg, old); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return cfg, nil
}

// Open is part of the environs.Provider interface.
func (environProvider) Open(ctx context.Context, args environs.OpenParams) (environs.Environ, error) {
	logger.Debugf("opening EC2 environ in %q", args.Config.Region())
	ecfg, err := newConfig(args.Config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	client, err := newClient(ctx, ecfg)
	if err != nil {
		return nil, errors.Annotate(err, "creating EC2 client")
	}
	return &environ{
		ecfg:   ecfg,
		client: client,
		clock:  clock.WallClock,
	}, nil
}
