// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package network_test

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/tenant-deployer/core/network"
)

type subnetSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&subnetSuite{})

func (s *subnetSuite) TestOctetRangeValidate(c *gc.C) {
	c.Check(network.DefaultOctetRange.Validate(), jc.ErrorIsNil)
	c.Check(network.OctetRange{Min: 10, Max: 10}.Validate(), jc.ErrorIsNil)
	c.Check(network.OctetRange{Min: 0, Max: 100}.Validate(), jc.ErrorIs, errors.NotValid)
	c.Check(network.OctetRange{Min: 1, Max: 255}.Validate(), jc.ErrorIs, errors.NotValid)
	c.Check(network.OctetRange{Min: 100, Max: 50}.Validate(), jc.ErrorIs, errors.NotValid)
}

func (s *subnetSuite) TestPickStaysWithinBounds(c *gc.C) {
	rnd := rand.New(rand.NewSource(42))
	r := network.OctetRange{Min: 7, Max: 11}
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		o := r.Pick(rnd)
		c.Assert(o >= 7 && o <= 11, jc.IsTrue, gc.Commentf("octet %d out of range", o))
		seen[o] = true
	}
	// Over a thousand draws every value in a five-wide range shows up.
	c.Check(seen, gc.HasLen, 5)
}

func (s *subnetSuite) TestDefaultRangeNeverDrawsEdges(c *gc.C) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		o := network.DefaultOctetRange.Pick(rnd)
		c.Assert(o, gc.Not(gc.Equals), 0)
		c.Assert(o, gc.Not(gc.Equals), 255)
		c.Assert(o, gc.Not(gc.Equals), 1)
	}
}

func (s *subnetSuite) TestDeploymentCIDR(c *gc.C) {
	cidr, err := network.DeploymentCIDR("10.0.0.0/16", 37)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cidr, gc.Equals, "10.0.37.0/24")

	cidr, err = network.DeploymentCIDR("172.16.0.0/12", 5)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cidr, gc.Equals, "172.16.5.0/24")
}

func (s *subnetSuite) TestDeploymentCIDRRejectsBadInput(c *gc.C) {
	_, err := network.DeploymentCIDR("not-a-cidr", 5)
	c.Check(err, jc.ErrorIs, errors.NotValid)

	_, err = network.DeploymentCIDR("10.0.0.0/24", 5)
	c.Check(err, jc.ErrorIs, errors.NotValid)

	_, err = network.DeploymentCIDR("10.0.0.0/16", 0)
	c.Check(err, jc.ErrorIs, errors.NotValid)

	_, err = network.DeploymentCIDR("10.0.0.0/16", 255)
	c.Check(err, jc.ErrorIs, errors.NotValid)

	_, err = network.DeploymentCIDR("2001:db8::/32", 5)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *subnetSuite) TestAllocateSubnetAvoidsExisting(c *gc.C) {
	rnd := rand.New(rand.NewSource(99))
	// Leave only octet 9 free.
	var existing []string
	for o := 2; o <= 254; o++ {
		if o == 9 {
			continue
		}
		existing = append(existing, fmt.Sprintf("10.0.%d.0/24", o))
	}
	cidr, err := network.AllocateSubnet("10.0.0.0/16", existing, network.OctetRange{Min: 8, Max: 10}, rnd)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cidr, gc.Equals, "10.0.9.0/24")
}

func (s *subnetSuite) TestAllocateSubnetExhaustion(c *gc.C) {
	rnd := rand.New(rand.NewSource(3))
	existing := []string{"10.0.5.0/24", "10.0.6.0/24"}
	_, err := network.AllocateSubnet("10.0.0.0/16", existing, network.OctetRange{Min: 5, Max: 6}, rnd)
	c.Assert(err, gc.NotNil)
	c.Check(strings.Contains(err.Error(), "no free /24"), jc.IsTrue)
}

func (s *subnetSuite) TestAllocateSubnetEmptyNetwork(c *gc.C) {
	rnd := rand.New(rand.NewSource(7))
	cidr, err := network.AllocateSubnet("10.0.0.0/16", nil, network.DefaultOctetRange, rnd)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(strings.HasPrefix(cidr, "10.0."), jc.IsTrue)
	c.Check(strings.HasSuffix(cidr, ".0/24"), jc.IsTrue)
}

func (s *subnetSuite) TestAllocateSubnetMergesFragments(c *gc.C) {
	rnd := rand.New(rand.NewSource(11))
	// Adjacent /25 fragments covering 10.0.5.0/24.
	existing := []string{"10.0.5.0/25", "10.0.5.128/25"}
	cidr, err := network.AllocateSubnet("10.0.0.0/16", existing, network.OctetRange{Min: 4, Max: 6}, rnd)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cidr, gc.Not(gc.Equals), "10.0.5.0/24")
}

func (s *subnetSuite) TestAllocateSubnetInvalidRange(c *gc.C) {
	_, err := network.AllocateSubnet("10.0.0.0/16", nil, network.OctetRange{Min: 0, Max: 10}, nil)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}
