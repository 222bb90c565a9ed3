// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package gce

import (
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
		"provider":       "gce",
		"tenant":         "acme",
		"name":           "web-0",
		"region":         "us-central1",
		"image":          "projects/debian-cloud/global/images/family/debian-12",
		"instance-type":  "e2-small",
		"ssh-public-key": "ssh-ed25519 AAAA user@host",
	}
	for k, v := range extra {
		attrs[k] = v
	}
	cfg, err := config.New(attrs)
	c.Assert(err, jc.ErrorIsNil)
	return cfg
}

func (s *providerSuite) TestValidateRequiresProject(c *gc.C) {
	_, err := environProvider{}.Validate(s.config(c, nil), nil)
	c.Check(err, gc.ErrorMatches, "invalid GCE provider config: .*project.*")
}

func (s *providerSuite) TestValidateWithProject(c *gc.C) {
	_, err := environProvider{}.Validate(s.config(c, map[string]interface{}{
		"project": "my-project",
	}), nil)
	c.Check(err, jc.ErrorIsNil)
}

func (s *providerSuite) TestCredentialsFileOptional(c *gc.C) {
	cfg := s.config(c, map[string]interface{}{
		"project":          "my-project",
		"credentials-file": "/etc/gce/creds.json",
	})
	ecfg, err := newConfig(cfg)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ecfg.credentialsFile(), gc.Equals, "/etc/gce/creds.json")
}
