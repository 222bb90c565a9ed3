// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

import (
	stderrors "errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/juju/errors"
)

// convertResponseError maps ARM response errors to the standard
// categories: 404 to not-found, 409 to already-exists. ARM reports a
// name clash as 409 Conflict, which is exactly the "concurrent creator
// won" outcome the provisioner folds into success.
func convertResponseError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if !stderrors.As(err, &respErr) {
		return err
	}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		return errors.NewNotFound(err, respErr.ErrorCode)
	case http.StatusConflict:
		return errors.NewAlreadyExists(err, respErr.ErrorCode)
	}
	return err
}
