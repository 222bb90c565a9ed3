// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config_test

import (
	"github.com/juju/errors"
	"github.com/juju/schema"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	corenetwork "github.com/canonical/tenant-deployer/core/network"
	coreos "github.com/canonical/tenant-deployer/core/os"
	"github.com/canonical/tenant-deployer/environs/config"
)

type configSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&configSuite{})

func minimalAttrs() map[string]interface{} {
	return map[string]interface{}{
		"provider":       "ec2",
		"tenant":         "acme",
		"name":           "web-0",
		"region":         "eu-west-1",
		"image":          "ami-0abcdef",
		"instance-type":  "t3.micro",
		"ssh-public-key": "ssh-ed25519 AAAAC3Nza user@host",
	}
}

func (s *configSuite) TestDefaults(c *gc.C) {
	cfg, err := config.New(minimalAttrs())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.OS(), gc.Equals, coreos.Linux)
	c.Check(cfg.BaseCIDR(), gc.Equals, "10.0.0.0/16")
	c.Check(cfg.OctetRange(), gc.Equals, corenetwork.DefaultOctetRange)
	c.Check(cfg.AdminUser(), gc.Equals, "admin")
	c.Check(cfg.Zone(), gc.Equals, "")
}

func (s *configSuite) TestAccessors(c *gc.C) {
	attrs := minimalAttrs()
	attrs["zone"] = "eu-west-1a"
	attrs["base-cidr"] = "172.16.0.0/16"
	attrs["subnet-octet-min"] = 10
	attrs["subnet-octet-max"] = 20
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Provider(), gc.Equals, "ec2")
	c.Check(cfg.Scope().Tenant, gc.Equals, "acme")
	c.Check(cfg.Name(), gc.Equals, "web-0")
	c.Check(cfg.Region(), gc.Equals, "eu-west-1")
	c.Check(cfg.Zone(), gc.Equals, "eu-west-1a")
	c.Check(cfg.Image(), gc.Equals, "ami-0abcdef")
	c.Check(cfg.InstanceType(), gc.Equals, "t3.micro")
	c.Check(cfg.BaseCIDR(), gc.Equals, "172.16.0.0/16")
	c.Check(cfg.OctetRange(), gc.Equals, corenetwork.OctetRange{Min: 10, Max: 20})
}

func (s *configSuite) TestMissingRequiredField(c *gc.C) {
	attrs := minimalAttrs()
	delete(attrs, "region")
	_, err := config.New(attrs)
	c.Assert(err, gc.NotNil)
}

func (s *configSuite) TestBadOSKind(c *gc.C) {
	attrs := minimalAttrs()
	attrs["os"] = "beos"
	_, err := config.New(attrs)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *configSuite) TestWindowsNeedsAdminPassword(c *gc.C) {
	attrs := minimalAttrs()
	attrs["os"] = "windows"
	delete(attrs, "ssh-public-key")
	_, err := config.New(attrs)
	c.Check(err, gc.ErrorMatches, ".*admin-password.*")

	attrs["admin-password"] = "hunter2!"
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.OS(), gc.Equals, coreos.Windows)
	c.Check(cfg.AdminPassword(), gc.Equals, "hunter2!")
}

func (s *configSuite) TestLinuxNeedsSSHKey(c *gc.C) {
	attrs := minimalAttrs()
	delete(attrs, "ssh-public-key")
	_, err := config.New(attrs)
	c.Check(err, gc.ErrorMatches, ".*ssh-public-key.*")
}

func (s *configSuite) TestBadTenant(c *gc.C) {
	attrs := minimalAttrs()
	attrs["tenant"] = "Not A Tenant"
	_, err := config.New(attrs)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *configSuite) TestBadBaseCIDR(c *gc.C) {
	attrs := minimalAttrs()
	attrs["base-cidr"] = "10.1.2.0/24"
	_, err := config.New(attrs)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *configSuite) TestBadOctetRange(c *gc.C) {
	attrs := minimalAttrs()
	attrs["subnet-octet-min"] = 200
	attrs["subnet-octet-max"] = 100
	_, err := config.New(attrs)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *configSuite) TestImmutableAttrs(c *gc.C) {
	old, err := config.New(minimalAttrs())
	c.Assert(err, jc.ErrorIsNil)

	attrs := minimalAttrs()
	attrs["tenant"] = "emca"
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)

	err = config.Validate(cfg, old)
	c.Check(err, gc.ErrorMatches, `cannot change tenant from "acme" to "emca"`)

	attrs = minimalAttrs()
	attrs["base-cidr"] = "192.168.0.0/16"
	cfg, err = config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)
	err = config.Validate(cfg, old)
	c.Check(err, gc.ErrorMatches, `cannot change base-cidr from .*`)
}

func (s *configSuite) TestMutableAttrsMayChange(c *gc.C) {
	old, err := config.New(minimalAttrs())
	c.Assert(err, jc.ErrorIsNil)

	attrs := minimalAttrs()
	attrs["name"] = "web-1"
	attrs["instance-type"] = "t3.large"
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(config.Validate(cfg, old), jc.ErrorIsNil)
}

func (s *configSuite) TestUnknownAttrsKeptAside(c *gc.C) {
	attrs := minimalAttrs()
	attrs["access-key"] = "AKIA123"
	attrs["secret-key"] = "sekrit"
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.UnknownAttrs(), jc.DeepEquals, map[string]interface{}{
		"access-key": "AKIA123",
		"secret-key": "sekrit",
	})
}

func (s *configSuite) TestValidateUnknownAttrs(c *gc.C) {
	attrs := minimalAttrs()
	attrs["project"] = "my-project"
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)

	coerced, err := cfg.ValidateUnknownAttrs(schema.Fields{
		"project":          schema.String(),
		"credentials-file": schema.String(),
	}, schema.Defaults{
		"credentials-file": "",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(coerced["project"], gc.Equals, "my-project")
	c.Check(coerced["credentials-file"], gc.Equals, "")
}

func (s *configSuite) TestAllAttrs(c *gc.C) {
	attrs := minimalAttrs()
	attrs["project"] = "my-project"
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)
	all := cfg.AllAttrs()
	c.Check(all["provider"], gc.Equals, "ec2")
	c.Check(all["project"], gc.Equals, "my-project")
	c.Check(all["os"], gc.Equals, "linux")
}
