// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package environs

import (
	"context"
	"sync"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/canonical/tenant-deployer/environs/config"
)

var (
	providersMu sync.Mutex
	providers   = make(map[string]Provider)
)

// RegisterProvider registers a provider under the given type name.
// Providers register themselves from init; registering the same name
// twice is a programming error.
func RegisterProvider(name string, p Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	if _, ok := providers[name]; ok {
		panic(errors.Errorf("provider %q already registered", name))
	}
	providers[name] = p
}

// UnregisterProvider removes a registered provider. It is intended for
// tests that register fakes.
func UnregisterProvider(name string) {
	providersMu.Lock()
	defer providersMu.Unlock()
	delete(providers, name)
}

// ProviderByType returns the provider registered under the given name.
func ProviderByType(name string) (Provider, error) {
	providersMu.Lock()
	defer providersMu.Unlock()
	p, ok := providers[name]
	if !ok {
		return nil, errors.NotFoundf("provider %q", name)
	}
	return p, nil
}

// RegisteredProviders returns the sorted names of all registered
// providers.
func RegisteredProviders() []string {
	providersMu.Lock()
	defer providersMu.Unlock()
	names := set.NewStrings()
	for name := range providers {
		names.Add(name)
	}
	return names.SortedValues()
}

// Open validates cfg with its provider and opens an Environ for it.
func Open(ctx context.Context, cfg *config.Config) (Environ, error) {
	p, err := ProviderByType(cfg.Provider())
	if err != nil {
		return nil, errors.Trace(err)
	}
	cfg, err = p.Validate(cfg, nil)
	if err != nil {
		return nil, errors.Annotate(err, "validating configuration")
	}
	env, err := p.Open(ctx, OpenParams{Config: cfg})
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s environment", cfg.Provider())
	}
	return env, nil
}
