// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ec2

import (
	stderrors "errors"
	"strings"

	"github.com/aws/smithy-go"
	"github.com/juju/errors"
)

// maybeConvertError maps EC2 API error codes to the error categories
// the provision engine understands. A duplicate or conflict code means
// some other creator got there first and must satisfy
// errors.AlreadyExists; a uniqueness-constraint violation is treated no
// differently. Unrecognised errors pass through unchanged.
func maybeConvertError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !stderrors.As(err, &apiErr) {
		return err
	}
	code := apiErr.ErrorCode()
	switch {
	case strings.HasSuffix(code, ".Duplicate"),
		strings.HasSuffix(code, ".Conflict"),
		strings.HasSuffix(code, "AlreadyExists"):
		return errors.NewAlreadyExists(err, code)
	case strings.HasSuffix(code, ".NotFound"):
		return errors.NewNotFound(err, code)
	}
	return err
}
