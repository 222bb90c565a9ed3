// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package gce provisions tenant deployments on Google Compute Engine.
// The shared tenant network maps to a custom-mode VPC network, baseline
// rules to firewall rules on it, the deployment subnet to a
// subnetwork.
package gce

import (
	"context"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/schema"

	"github.com/canonical/tenant-deployer/environs"
	"github.com/canonical/tenant-deployer/environs/config"
	"github.com/canonical/tenant-deployer/provider/gce/google"
)

var logger = loggo.GetLogger("deployer.provider.gce")

func init() {
	environs.RegisterProvider("gce", environProvider{})
}

type environProvider struct{}

var configFields = schema.Fields{
	"project":          schema.String(),
	"credentials-file": schema.String(),
}

var configDefaults = schema.Defaults{
	"credentials-file": "",
}

type environConfig struct {
	*config.Config
	attrs map[string]interface{}
}

func (c *environConfig) project() string         { return c.attrs["project"].(string) }
func (c *environConfig) credentialsFile() string { return c.attrs["credentials-file"].(string) }

func newConfig(cfg *config.Config) (*environConfig, error) {
	attrs, err := cfg.ValidateUnknownAttrs(configFields, configDefaults)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ecfg := &environConfig{cfg, attrs}
	if ecfg.project() == "" {
		return nil, errors.NotValidf("empty project")
	}
	return ecfg, nil
}

// Validate is part of the environs.Provider interface.
func (environProvider) Validate(cfg, old *config.Config) (*config.Config, error) {
	if _, err := newConfig(cfg); err != nil {
		return nil, errors.Annotate(err, "invalid GCE provider config")
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
	logger.Debugf("opening GCE environ in %q", args.Config.Region())
	ecfg, err := newConfig(args.Config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	conn, err := google.Connect(ctx, google.Auth{
		ProjectID:       ecfg.project(),
		CredentialsFile: ecfg.credentialsFile(),
	})
	if err != nil {
		return nil, errors.Annotate(err, "connecting to GCE")
	}
	return &environ{
		ecfg:  ecfg,
		gce:   conn,
		clock: clock.WallClock,
	}, nil
}
