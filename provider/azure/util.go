// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

// toValue dereferences an SDK pointer field, returning the zero value
// for nil.
func toValue[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
