// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package os holds the OS kind tag used to select deployment steps.
package os

import (
	"strings"

	"github.com/juju/errors"
)

// Kind tags the operating system family of a deployment. Follow-on
// provisioning steps (baseline firewall rules, credential wiring) branch
// on this value.
type Kind string

const (
	Linux   Kind = "linux"
	Windows Kind = "windows"
)

// ParseKind converts a user-supplied string to a Kind.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(value)) {
	case Linux:
		return Linux, nil
	case Windows:
		return Windows, nil
	}
	return "", errors.NotValidf("OS kind %q", value)
}

func (k Kind) String() string {
	return string(k)
}
