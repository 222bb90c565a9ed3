// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the deployment configuration common to all cloud
// providers. Provider-specific attributes are carried through untyped
// and validated by the provider itself.
package config

import (
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/schema"

	corenetwork "github.com/canonical/tenant-deployer/core/network"
	coreos "github.com/canonical/tenant-deployer/core/os"
	"github.com/canonical/tenant-deployer/core/resource"
)

var logger = loggo.GetLogger("deployer.environs.config")

// Config holds an immutable deployment configuration.
type Config struct {
	// m holds the attributes defined for every deployment.
	// t holds the provider-specific attributes passed through untyped.
	m, t map[string]interface{}
}

var fields = schema.Fields{
	"provider":         schema.String(),
	"tenant":           schema.String(),
	"name":             schema.String(),
	"region":           schema.String(),
	"zone":             schema.String(),
	"image":            schema.String(),
	"instance-type":    schema.String(),
	"os":               schema.String(),
	"base-cidr":        schema.String(),
	"subnet-octet-min": schema.Int(),
	"subnet-octet-max": schema.Int(),
	"admin-user":       schema.String(),
	"admin-password":   schema.String(),
	"ssh-public-key":   schema.String(),
}

var defaults = schema.Defaults{
	"zone":             "",
	"os":               string(coreos.Linux),
	"base-cidr":        "10.0.0.0/16",
	"subnet-octet-min": corenetwork.DefaultOctetRange.Min,
	"subnet-octet-max": corenetwork.DefaultOctetRange.Max,
	"admin-user":       "admin",
	"admin-password":   "",
	"ssh-public-key":   "",
}

var checker = schema.FieldMap(fields, defaults)

// immutableAttrs may not change between an old and a new configuration
// for the same deployment: shared resource names and the subnet base are
// derived from them.
var immutableAttrs = []string{"provider", "tenant", "base-cidr"}

// New returns a configuration built from attrs. Fields common to all
// providers are coerced and verified; unrecognised attributes are kept
// aside for the provider to validate.
func New(attrs map[string]interface{}) (*Config, error) {
	m, err := checker.Coerce(attrs, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c := &Config{
		m: m.(map[string]interface{}),
		t: make(map[string]interface{}),
	}
	if err := Validate(c, nil); err != nil {
		return nil, errors.Trace(err)
	}
	for k, v := range attrs {
		if _, ok := fields[k]; !ok {
			c.t[k] = v
		}
	}
	return c, nil
}

// Validate ensures that cfg is a valid configuration. If old is not
// nil it holds the previous configuration for the same deployment, and
// immutable attributes are checked against it.
func Validate(cfg, old *Config) error {
	scope := cfg.Scope()
	if err := scope.Validate(); err != nil {
		return errors.Trace(err)
	}
	osKind, err := coreos.ParseKind(cfg.mustString("os"))
	if err != nil {
		return errors.Trace(err)
	}
	if cfg.mustString("name") == "" {
		return errors.NotValidf("empty instance name")
	}
	if cfg.mustString("region") == "" {
		return errors.NotValidf("empty region")
	}
	if cfg.mustString("image") == "" {
		return errors.NotValidf("empty image")
	}
	if cfg.mustString("instance-type") == "" {
		return errors.NotValidf("empty instance-type")
	}
	if _, err := corenetwork.DeploymentCIDR(cfg.BaseCIDR(), 2); err != nil {
		return errors.Trace(err)
	}
	if err := cfg.OctetRange().Validate(); err != nil {
		return errors.Trace(err)
	}
	// Credentials are opaque pass-throughs, but each OS kind needs the
	// one it boots with.
	switch osKind {
	case coreos.Windows:
		if cfg.AdminPassword() == "" {
			return errors.NotValidf("windows deployment without admin-password")
		}
	case coreos.Linux:
		if cfg.SSHPublicKey() == "" {
			return errors.NotValidf("linux deployment without ssh-public-key")
		}
	}
	if old != nil {
		for _, attr := range immutableAttrs {
			if cfg.m[attr] != old.m[attr] {
				return errors.Errorf("cannot change %s from %q to %q", attr, old.m[attr], cfg.m[attr])
			}
		}
	}
	return nil
}

func (c *Config) mustString(name string) string {
	value, _ := c.m[name].(string)
	return value
}

// Provider returns the provider type, e.g. "ec2".
func (c *Config) Provider() string { return c.mustString("provider") }

// Scope returns the tenant scope the deployment targets.
func (c *Config) Scope() resource.Scope {
	return resource.Scope{Tenant: c.mustString("tenant")}
}

// Name returns the instance name for this deployment.
func (c *Config) Name() string { return c.mustString("name") }

// Region returns the cloud region to deploy into.
func (c *Config) Region() string { return c.mustString("region") }

// Zone returns the availability zone, or empty to let the provider
// choose one.
func (c *Config) Zone() string { return c.mustString("zone") }

// Image returns the provider-specific image reference. It is passed
// through untouched; image selection logic is out of scope.
func (c *Config) Image() string { return c.mustString("image") }

// InstanceType returns the provider-specific machine size, passed
// through untouched.
func (c *Config) InstanceType() string { return c.mustString("instance-type") }

// OS returns the deployment's OS kind.
func (c *Config) OS() coreos.Kind {
	kind, err := coreos.ParseKind(c.mustString("os"))
	if err != nil {
		// Validated by New.
		logger.Errorf("invalid os kind in validated config: %v", err)
	}
	return kind
}

// BaseCIDR returns the tenant base CIDR deployment subnets are carved
// from.
func (c *Config) BaseCIDR() string { return c.mustString("base-cidr") }

// OctetRange returns the configured bounds for the subnet octet draw.
func (c *Config) OctetRange() corenetwork.OctetRange {
	return corenetwork.OctetRange{
		Min: c.mustInt("subnet-octet-min"),
		Max: c.mustInt("subnet-octet-max"),
	}
}

func (c *Config) mustInt(name string) int {
	// Coerced values arrive as int64, defaults as whatever the
	// defaults map holds.
	switch value := c.m[name].(type) {
	case int64:
		return int(value)
	case int:
		return value
	}
	return 0
}

// AdminUser returns the administrator account name for the instance.
func (c *Config) AdminUser() string { return c.mustString("admin-user") }

// AdminPassword returns the administrator password pass-through, empty
// for Linux deployments.
func (c *Config) AdminPassword() string { return c.mustString("admin-password") }

// SSHPublicKey returns the SSH public key pass-through, empty for
// Windows deployments.
func (c *Config) SSHPublicKey() string { return c.mustString("ssh-public-key") }

// UnknownAttrs returns a copy of the attributes not recognised by this
// package. They are assumed to be provider-specific.
func (c *Config) UnknownAttrs() map[string]interface{} {
	attrs := make(map[string]interface{}, len(c.t))
	for k, v := range c.t {
		attrs[k] = v
	}
	return attrs
}

// ValidateUnknownAttrs checks the unknown attributes against a
// provider-supplied schema and returns the coerced result. Attributes
// the provider schema does not mention are passed through with a
// warning rather than rejected.
func (c *Config) ValidateUnknownAttrs(extra schema.Fields, extraDefaults schema.Defaults) (map[string]interface{}, error) {
	attrs := c.UnknownAttrs()
	coerced, err := schema.FieldMap(extra, extraDefaults).Coerce(attrs, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := coerced.(map[string]interface{})
	for name, value := range attrs {
		if _, ok := extra[name]; !ok {
			logger.Warningf("unknown config field %q", name)
			result[name] = value
		}
	}
	return result, nil
}

// AllAttrs returns a copy of the complete configuration, defined and
// provider-specific attributes together.
func (c *Config) AllAttrs() map[string]interface{} {
	attrs := c.UnknownAttrs()
	for k, v := range c.m {
		attrs[k] = v
	}
	return attrs
}
