// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package azure provisions tenant deployments on Azure. The tenant
// scope maps to a resource group holding a virtual network and a
// network security group; the deployment subnet to a vnet subnet, the
// machine to a VM with its own NIC.
package azure

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/schema"

	"github.com/canonical/tenant-deployer/core/resource"
	"github.com/canonical/tenant-deployer/environs"
	"github.com/canonical/tenant-deployer/environs/config"
)

var logger = loggo.GetLogger("deployer.provider.azure")

func init() {
	environs.RegisterProvider("azure", environProvider{})
}

type environProvider struct{}

var configFields = schema.Fields{
	"subscription-id": schema.String(),
	"app-id":          schema.String(),
	"app-password":    schema.String(),
	"directory-id":    schema.String(),
}

var configDefaults = schema.Defaults{
	// Empty service principal details fall back to the SDK's default
	// credential chain (environment, managed identity, CLI).
	"app-id":       "",
	"app-password": "",
	"directory-id": "",
}

type environConfig struct {
	*config.Config
	attrs map[string]interface{}
}

func (c *environConfig) subscriptionID() string { return c.attrs["subscription-id"].(string) }
func (c *environConfig) appID() string          { return c.attrs["app-id"].(string) }
func (c *environConfig) appPassword() string    { return c.attrs["app-password"].(string) }
func (c *environConfig) directoryID() string    { return c.attrs["directory-id"].(string) }

func newConfig(cfg *config.Config) (*environConfig, error) {
	attrs, err := cfg.ValidateUnknownAttrs(configFields, configDefaults)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ecfg := &environConfig{cfg, attrs}
	if ecfg.subscriptionID() == "" {
		return nil, errors.NotValidf("empty subscription-id")
	}
	servicePrincipal := ecfg.appID() != "" || ecfg.appPassword() != "" || ecfg.directoryID() != ""
	if servicePrincipal && (ecfg.appID() == "" || ecfg.appPassword() == "" || ecfg.directoryID() == "") {
		return nil, errors.NotValidf("partial service principal: app-id, app-password and directory-id must be set together")
	}
	return ecfg, nil
}

// resourceGroupName returns the name of the resource group holding all
// of a tenant's shared and deployment resources.
func resourceGroupName(scope resource.Scope) string {
	return fmt.Sprintf("tenant-%s-rg", scope.Tenant)
}

// Validate is part of the environs.Provider interface.
func (environProvider) Validate(cfg, old *config.Config) (*config.Config, error) {
	if _, err := newConfig(cfg); err != nil {
		return nil, errors.Annotate(err, "invalid Azure provider config")
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
	logger.Debugf("opening Azure environ in %q", args.Config.Region())
	ecfg, err := newConfig(args.Config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	client, err := newClient(ecfg)
	if err != nil {
		return nil, errors.Annotate(err, "creating Azure clients")
	}
	return &environ{
		ecfg:   ecfg,
		client: client,
	}, nil
}
