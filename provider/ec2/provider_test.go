// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ec2

import (
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/tenant-deployer/environs/config"
)

type providerSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&providerSuite{})

func (s *providerSuite) config(c *gc.C, extra map[string]interface{}) *config.Config {
	attrs := map[string]interface{}{
		"provider":       "ec2",
		"tenant":         "acme",
		"name":           "web-0",
		"region":         "eu-west-1",
		"image":          "ami-0abcdef",
		"instance-type":  "t3.micro",
		"ssh-public-key": "ssh-ed25519 AAAA user@host",
	}
	for k, v := range extra {
		attrs[k] = v
	}
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)
	return cfg
}

func (s *providerSuite) TestValidateEmptyCredentials(c *gc.C) {
	// No static credentials means the SDK default chain.
	_, err := providerInstance.Validate(s.config(c, nil), nil)
	c.Check(err, jc.ErrorIsNil)
}

func (s *providerSuite) TestValidateStaticCredentials(c *gc.C) {
	_, err := providerInstance.Validate(s.config(c, map[string]interface{}{
		"access-key": "AKIA123",
		"secret-key": "sekrit",
	}), nil)
	c.Check(err, jc.ErrorIsNil)
}

func (s *providerSuite) TestValidateLonelyAccessKey(c *gc.C) {
	_, err := providerInstance.Validate(s.config(c, map[string]interface{}{
		"access-key": "AKIA123",
	}), nil)
	c.Check(err, jc.ErrorIs, errors.NotValid)
	c.Check(err, gc.ErrorMatches, ".*access-key and secret-key must be set together.*")
}

func (s *providerSuite) TestValidateUnexpectedAttrTolerated(c *gc.C) {
	// Attributes the provider does not know are passed through with a
	// warning rather than rejected.
	_, err := providerInstance.Validate(s.config(c, map[string]interface{}{
		"project": "not-an-ec2-thing",
	}), nil)
	c.Check(err, jc.ErrorIsNil)
}

func (s *providerSuite) TestValidateAgainstOldConfig(c *gc.C) {
	old := s.config(c, nil)
	attrs := map[string]interface{}{
		"provider":       "ec2",
		"tenant":         "emca",
		"name":           "web-0",
		"region":         "eu-west-1",
		"image":          "ami-0abcdef",
		"instance-type":  "t3.micro",
		"ssh-public-key": "ssh-ed25519 AAAA user@host",
	}
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)

	_, err = providerInstance.Validate(cfg, old)
	c.Check(err, gc.ErrorMatches, "cannot change tenant .*")
}
