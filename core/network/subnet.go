// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package network provides the deployment subnet allocator. Each
// deployment carves a /24 out of the tenant's base /16 by drawing a
// pseudo-random third octet. The draw avoids edge values and re-draws
// against subnets already present in the tenant network, but collisions
// between deployments racing on the same octet remain possible: the
// allocator is best-effort, the provider's subnet-creation uniqueness
// is the real arbiter.
package network

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	cidrman "github.com/EvilSuperstars/go-cidrman"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("deployer.core.network")

// OctetRange bounds the third octet drawn for a deployment subnet.
// Values 0 and 255 are never drawn regardless of the configured bounds.
type OctetRange struct {
	Min int
	Max int
}

// DefaultOctetRange is used when a deployment does not configure one.
var DefaultOctetRange = OctetRange{Min: 2, Max: 254}

// Validate returns an error if the range is empty or includes the
// network/broadcast edge values.
func (r OctetRange) Validate() error {
	if r.Min < 1 || r.Max > 254 || r.Min > r.Max {
		return errors.NotValidf("octet range [%d, %d]", r.Min, r.Max)
	}
	return nil
}

// Pick draws an octet from the range using rnd, or the package source
// if rnd is nil.
func (r OctetRange) Pick(rnd *rand.Rand) int {
	if rnd == nil {
		rnd = defaultRand
	}
	return r.Min + rnd.Intn(r.Max-r.Min+1)
}

var defaultRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// DeploymentCIDR derives the /24 for the given octet from the tenant
// base CIDR, which must be at most a /16.
func DeploymentCIDR(base string, octet int) (string, error) {
	ip, ipNet, err := net.ParseCIDR(base)
	if err != nil {
		return "", errors.NotValidf("base CIDR %q", base)
	}
	if ones, _ := ipNet.Mask.Size(); ones > 16 {
		return "", errors.NotValidf("base CIDR %q narrower than /16", base)
	}
	if octet < 1 || octet > 254 {
		return "", errors.NotValidf("subnet octet %d", octet)
	}
	v4 := ip.To4()
	if v4 == nil {
		return "", errors.NotValidf("non-IPv4 base CIDR %q", base)
	}
	return fmt.Sprintf("%d.%d.%d.0/24", v4[0], v4[1], octet), nil
}

// maxAllocateAttempts bounds the re-draws performed by AllocateSubnet
// before giving up on a crowded tenant network.
const maxAllocateAttempts = 20

// AllocateSubnet picks a deployment /24 under base that does not overlap
// any of the existing CIDRs. The existing list is merged first so that
// provider-reported duplicates or adjacent fragments do not inflate the
// overlap checks. A nil rnd uses the package source.
func AllocateSubnet(base string, existing []string, r OctetRange, rnd *rand.Rand) (string, error) {
	if err := r.Validate(); err != nil {
		return "", errors.Trace(err)
	}
	merged, err := cidrman.MergeCIDRs(existing)
	if err != nil {
		return "", errors.Annotate(err, "merging existing subnet CIDRs")
	}
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		octet := r.Pick(rnd)
		candidate, err := DeploymentCIDR(base, octet)
		if err != nil {
			return "", errors.Trace(err)
		}
		taken, err := overlapsAny(candidate, merged)
		if err != nil {
			return "", errors.Trace(err)
		}
		if !taken {
			return candidate, nil
		}
		logger.Debugf("subnet %s already taken, redrawing (attempt %d)", candidate, attempt+1)
	}
	return "", errors.Errorf("no free /24 found under %s after %d attempts", base, maxAllocateAttempts)
}

func overlapsAny(candidate string, cidrs []string) (bool, error) {
	candIP, candNet, err := net.ParseCIDR(candidate)
	if err != nil {
		return false, errors.NotValidf("CIDR %q", candidate)
	}
	for _, cidr := range cidrs {
		ip, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return false, errors.NotValidf("CIDR %q", cidr)
		}
		if candNet.Contains(ip) || ipNet.Contains(candIP) {
			return true, nil
		}
	}
	return false, nil
}
