// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package deployer assembles a deployment run: the ordered, idempotent
// steps that take a tenant from possibly-nothing to a running machine.
// Shared tenant resources are ensured, deployment-local resources are
// created fresh. A run is strictly sequential and the first failing
// step aborts the rest.
package deployer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"golang.org/x/crypto/ssh"

	corenetwork "github.com/canonical/tenant-deployer/core/network"
	coreos "github.com/canonical/tenant-deployer/core/os"
	"github.com/canonical/tenant-deployer/core/resource"
	"github.com/canonical/tenant-deployer/environs"
	"github.com/canonical/tenant-deployer/environs/config"
	"github.com/canonical/tenant-deployer/provision"
)

var logger = loggo.GetLogger("deployer.deployer")

// newDeploymentID returns a fresh deployment id, short enough to embed
// in provider resource names.
var newDeploymentID = func() string {
	return uuid.New().String()[:8]
}

// Deployer runs deployments against one opened Environ.
type Deployer struct {
	env environs.Environ
	cfg *config.Config

	mu     sync.Mutex
	result Result
}

// Result reports what a deployment run provisioned.
type Result struct {
	DeploymentID string
	Network      environs.Network
	Subnet       environs.Subnet
	Instance     environs.Instance
}

// New returns a Deployer for the given environ and configuration.
func New(env environs.Environ, cfg *config.Config) *Deployer {
	return &Deployer{env: env, cfg: cfg}
}

// Deploy runs the full deployment step sequence and returns what was
// provisioned. Shared tenant steps may be no-ops when another
// deployment got there first; deployment-local steps always create.
func (d *Deployer) Deploy(ctx context.Context) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	scope := d.cfg.Scope()
	d.result = Result{DeploymentID: newDeploymentID()}
	logger.Infof("deploying %q for tenant %q (deployment %s)", d.cfg.Name(), scope.Tenant, d.result.DeploymentID)

	if err := provision.RunSteps(ctx, d.deploySteps(scope)); err != nil {
		return d.result, errors.Trace(err)
	}
	return d.result, nil
}

func (d *Deployer) deploySteps(scope resource.Scope) []provision.Step {
	steps := []provision.Step{{
		Name: "ensure tenant network",
		Run: func(ctx context.Context) error {
			network, err := d.env.EnsureTenantNetwork(ctx, scope)
			if err != nil {
				return errors.Trace(err)
			}
			d.result.Network = network
			return nil
		},
	}, {
		Name: "ensure baseline firewall rules",
		Run: func(ctx context.Context) error {
			return errors.Trace(d.env.EnsureBaselineRules(ctx, scope, d.cfg.OS()))
		},
	}}

	// The OS kind selects the follow-on steps: Linux deployments get
	// their SSH key material checked up front, Windows deployments
	// boot with the password pass-through and skip it.
	if d.cfg.OS() == coreos.Linux {
		steps = append(steps, provision.Step{
			Name: "verify ssh public key",
			Run: func(ctx context.Context) error {
				_, _, _, _, err := ssh.ParseAuthorizedKey([]byte(d.cfg.SSHPublicKey()))
				return errors.Annotate(err, "parsing ssh-public-key")
			},
		})
	}

	steps = append(steps, provision.Step{
		Name: "allocate deployment subnet",
		Run: func(ctx context.Context) error {
			existing, err := d.env.Subnets(ctx, scope)
			if err != nil {
				return errors.Trace(err)
			}
			cidrs := make([]string, 0, len(existing))
			for _, subnet := range existing {
				cidrs = append(cidrs, subnet.CIDR)
			}
			cidr, err := corenetwork.AllocateSubnet(d.cfg.BaseCIDR(), cidrs, d.cfg.OctetRange(), nil)
			if err != nil {
				return errors.Trace(err)
			}
			d.result.Subnet.CIDR = cidr
			return nil
		},
	}, provision.Step{
		Name: "create deployment subnet",
		Run: func(ctx context.Context) error {
			subnet, err := d.env.CreateSubnet(ctx, scope, d.result.DeploymentID, d.result.Subnet.CIDR)
			if err != nil {
				return errors.Trace(err)
			}
			d.result.Subnet = subnet
			return nil
		},
	}, provision.Step{
		Name: "start instance",
		Run: func(ctx context.Context) error {
			instance, err := d.env.StartInstance(ctx, environs.StartInstanceParams{
				Scope:        scope,
				Name:         d.cfg.Name(),
				OS:           d.cfg.OS(),
				Image:        d.cfg.Image(),
				InstanceType: d.cfg.InstanceType(),
				Subnet:       d.result.Subnet,
				Credentials: environs.Credentials{
					User:         d.cfg.AdminUser(),
					Password:     d.cfg.AdminPassword(),
					SSHPublicKey: d.cfg.SSHPublicKey(),
				},
			})
			if err != nil {
				return errors.Trace(err)
			}
			d.result.Instance = instance
			return nil
		},
	})
	return steps
}

// Destroy tears down the deployment-local resources of a previous run:
// the instance and its subnet. Shared tenant resources are deliberately
// left in place; they are deleted out-of-band if ever.
func (d *Deployer) Destroy(ctx context.Context, deploymentID string) error {
	scope := d.cfg.Scope()
	steps := []provision.Step{{
		Name: "stop instance",
		Run: func(ctx context.Context) error {
			err := d.env.StopInstance(ctx, scope, d.cfg.Name())
			if errors.Is(err, errors.NotFound) {
				logger.Debugf("instance %q already gone", d.cfg.Name())
				return nil
			}
			return errors.Trace(err)
		},
	}, {
		Name: "destroy deployment subnet",
		Run: func(ctx context.Context) error {
			err := d.env.DestroySubnet(ctx, scope, deploymentID)
			if errors.Is(err, errors.NotFound) {
				logger.Debugf("subnet for deployment %s already gone", deploymentID)
				return nil
			}
			return errors.Trace(err)
		},
	}}
	return errors.Trace(provision.RunSteps(ctx, steps))
}
