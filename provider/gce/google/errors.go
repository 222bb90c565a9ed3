// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package google

import (
	stderrors "errors"
	"net/http"

	"github.com/juju/errors"
	"google.golang.org/api/googleapi"
)

// convertRawError maps googleapi errors onto the categories the rest of
// the system branches on: 404 to not-found, 409 to already-exists. A
// 409 is how GCE reports its name uniqueness constraint firing, which
// is indistinguishable from, and treated the same as, a concurrent
// creator having won.
func convertRawError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !stderrors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusNotFound:
		return errors.NewNotFound(err, "")
	case http.StatusConflict:
		return errors.NewAlreadyExists(err, "")
	}
	return err
}

// IsNotFound reports whether err is a not-found from the GCE API.
func IsNotFound(err error) bool {
	return errors.Is(err, errors.NotFound)
}
