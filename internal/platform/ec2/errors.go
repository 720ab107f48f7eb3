package ec2

import (
	"errors"

	"github.com/aws/smithy-go"
)

// EC2 error codes that change how a call is classified.
const (
	codeDryRun        = "DryRunOperation"
	codeGroupNotFound = "InvalidGroup.NotFound"
)

// isAPIErrorCode checks if err is a smithy API error with one of the given codes.
func isAPIErrorCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		for _, code := range codes {
			if apiErr.ErrorCode() == code {
				return true
			}
		}
	}
	return false
}

// IsDryRun reports whether err is the error EC2 returns for a dry run that
// would have succeeded.
func IsDryRun(err error) bool {
	return isAPIErrorCode(err, codeDryRun)
}

// IsNotFound reports whether err indicates a missing security group.
func IsNotFound(err error) bool {
	return isAPIErrorCode(err, codeGroupNotFound)
}

// errorMessage returns the provider message of an API error, or err's text.
func errorMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}
