// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package deployer_test

import (
	"context"
	"strings"

	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreos "github.com/canonical/tenant-deployer/core/os"
	"github.com/canonical/tenant-deployer/core/resource"
	"github.com/canonical/tenant-deployer/deployer"
	"github.com/canonical/tenant-deployer/environs"
	"github.com/canonical/tenant-deployer/environs/config"
)

// A real public key: the verify step parses it.
const testSSHKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl user@host"

type deployerSuite struct {
	jujutesting.IsolationSuite

	env *fakeEnviron
}

var _ = gc.Suite(&deployerSuite{})

func (s *deployerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.env = &fakeEnviron{}
	s.PatchValue(deployer.NewDeploymentID, func() string { return "feed0001" })
}

// fakeEnviron records the calls a deployment run makes.
type fakeEnviron struct {
	calls []string

	networkErr  error
	rulesOS     coreos.Kind
	subnets     []environs.Subnet
	subnetsErr  error
	createdCIDR string
	stopErr     error
	destroyErr  error
}

var _ environs.Environ = (*fakeEnviron)(nil)

func (e *fakeEnviron) EnsureTenantNetwork(ctx context.Context, scope resource.Scope) (environs.Network, error) {
	e.calls = append(e.calls, "EnsureTenantNetwork")
	if e.networkErr != nil {
		return environs.Network{}, e.networkErr
	}
	return environs.Network{
		ID:   "net-1",
		Name: resource.TenantNetworkName(scope),
		CIDR: "10.0.0.0/16",
	}, nil
}

func (e *fakeEnviron) EnsureBaselineRules(ctx context.Context, scope resource.Scope, osKind coreos.Kind) error {
	e.calls = append(e.calls, "EnsureBaselineRules")
	e.rulesOS = osKind
	return nil
}

func (e *fakeEnviron) Subnets(ctx context.Context, scope resource.Scope) ([]environs.Subnet, error) {
	e.calls = append(e.calls, "Subnets")
	return e.subnets, e.subnetsErr
}

func (e *fakeEnviron) CreateSubnet(ctx context.Context, scope resource.Scope, deploymentID, cidr string) (environs.Subnet, error) {
	e.calls = append(e.calls, "CreateSubnet")
	e.createdCIDR = cidr
	return environs.Subnet{
		ID:   "subnet-1",
		Name: resource.DeploymentSubnetName(scope, deploymentID),
		CIDR: cidr,
	}, nil
}

func (e *fakeEnviron) StartInstance(ctx context.Context, params environs.StartInstanceParams) (environs.Instance, error) {
	e.calls = append(e.calls, "StartInstance")
	return environs.Instance{ID: "i-1", Name: params.Name, PrivateAddress: "10.0.7.4"}, nil
}

func (e *fakeEnviron) StopInstance(ctx context.Context, scope resource.Scope, name string) error {
	e.calls = append(e.calls, "StopInstance")
	return e.stopErr
}

func (e *fakeEnviron) DestroySubnet(ctx context.Context, scope resource.Scope, deploymentID string) error {
	e.calls = append(e.calls, "DestroySubnet")
	return e.destroyErr
}

func (s *deployerSuite) linuxConfig(c *gc.C) *config.Config {
	cfg, err := config.New(map[string]interface{}{
		"provider":       "ec2",
		"tenant":         "acme",
		"name":           "web-0",
		"region":         "eu-west-1",
		"image":          "ami-0abcdef",
		"instance-type":  "t3.micro",
		"ssh-public-key": testSSHKey,
	})
	c.Assert(err, jc.ErrorIsNil)
	return cfg
}

func (s *deployerSuite) windowsConfig(c *gc.C) *config.Config {
	cfg, err := config.New(map[string]interface{}{
		"provider":       "ec2",
		"tenant":         "acme",
		"name":           "win-0",
		"region":         "eu-west-1",
		"image":          "ami-0windows",
		"instance-type":  "t3.medium",
		"os":             "windows",
		"admin-password": "hunter2!",
	})
	c.Assert(err, jc.ErrorIsNil)
	return cfg
}

func (s *deployerSuite) TestLinuxDeployStepOrder(c *gc.C) {
	d := deployer.New(s.env, s.linuxConfig(c))
	result, err := d.Deploy(context.Background())
	c.Assert(err, jc.ErrorIsNil)

	c.Check(s.env.calls, jc.DeepEquals, []string{
		"EnsureTenantNetwork",
		"EnsureBaselineRules",
		"Subnets",
		"CreateSubnet",
		"StartInstance",
	})
	c.Check(s.env.rulesOS, gc.Equals, coreos.Linux)
	c.Check(result.DeploymentID, gc.Equals, "feed0001")
	c.Check(result.Network.ID, gc.Equals, "net-1")
	c.Check(result.Subnet.Name, gc.Equals, "tenant-acme-dep-feed0001")
	c.Check(result.Instance.ID, gc.Equals, "i-1")
}

func (s *deployerSuite) TestWindowsDeploySkipsSSHVerify(c *gc.C) {
	d := deployer.New(s.env, s.windowsConfig(c))
	_, err := d.Deploy(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.env.rulesOS, gc.Equals, coreos.Windows)
}

func (s *deployerSuite) TestMalformedSSHKeyAbortsBeforeSubnets(c *gc.C) {
	cfg, err := config.New(map[string]interface{}{
		"provider":       "ec2",
		"tenant":         "acme",
		"name":           "web-0",
		"region":         "eu-west-1",
		"image":          "ami-0abcdef",
		"instance-type":  "t3.micro",
		"ssh-public-key": "not a key at all",
	})
	c.Assert(err, jc.ErrorIsNil)

	d := deployer.New(s.env, cfg)
	_, err = d.Deploy(context.Background())
	c.Assert(err, gc.ErrorMatches, `step "verify ssh public key": .*`)
	c.Check(s.env.calls, jc.DeepEquals, []string{
		"EnsureTenantNetwork",
		"EnsureBaselineRules",
	})
}

func (s *deployerSuite) TestNetworkFailureAbortsRun(c *gc.C) {
	boom := errors.New("vpc quota exceeded")
	s.env.networkErr = boom

	d := deployer.New(s.env, s.linuxConfig(c))
	_, err := d.Deploy(context.Background())
	c.Assert(err, gc.ErrorMatches, `step "ensure tenant network": vpc quota exceeded`)
	c.Check(errors.Cause(err), gc.Equals, boom)
	c.Check(s.env.calls, jc.DeepEquals, []string{"EnsureTenantNetwork"})
}

func (s *deployerSuite) TestSubnetAvoidsExistingCIDRs(c *gc.C) {
	// Leave only octet 9 free in the configured draw window.
	s.env.subnets = []environs.Subnet{
		{ID: "s-8", CIDR: "10.0.8.0/24"},
		{ID: "s-10", CIDR: "10.0.10.0/24"},
	}
	cfg, err := config.New(map[string]interface{}{
		"provider":         "ec2",
		"tenant":           "acme",
		"name":             "web-0",
		"region":           "eu-west-1",
		"image":            "ami-0abcdef",
		"instance-type":    "t3.micro",
		"ssh-public-key":   testSSHKey,
		"subnet-octet-min": 8,
		"subnet-octet-max": 10,
	})
	c.Assert(err, jc.ErrorIsNil)

	d := deployer.New(s.env, cfg)
	result, err := d.Deploy(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(result.Subnet.CIDR, gc.Equals, "10.0.9.0/24")
	c.Check(s.env.createdCIDR, gc.Equals, "10.0.9.0/24")
}

func (s *deployerSuite) TestDeployedCIDRUnderBase(c *gc.C) {
	d := deployer.New(s.env, s.linuxConfig(c))
	result, err := d.Deploy(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(strings.HasPrefix(result.Subnet.CIDR, "10.0."), jc.IsTrue)
	c.Check(strings.HasSuffix(result.Subnet.CIDR, ".0/24"), jc.IsTrue)
}

func (s *deployerSuite) TestDestroy(c *gc.C) {
	d := deployer.New(s.env, s.linuxConfig(c))
	err := d.Destroy(context.Background(), "feed0001")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.env.calls, jc.DeepEquals, []string{"StopInstance", "DestroySubnet"})
}

func (s *deployerSuite) TestDestroyToleratesMissingResources(c *gc.C) {
	s.env.stopErr = errors.NotFoundf("instance")
	s.env.destroyErr = errors.NotFoundf("subnet")
	d := deployer.New(s.env, s.linuxConfig(c))
	err := d.Destroy(context.Background(), "feed0001")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *deployerSuite) TestDestroyPropagatesOtherErrors(c *gc.C) {
	s.env.stopErr = errors.New("api down")
	d := deployer.New(s.env, s.linuxConfig(c))
	err := d.Destroy(context.Background(), "feed0001")
	c.Assert(err, gc.ErrorMatches, `step "stop instance": api down`)
}
