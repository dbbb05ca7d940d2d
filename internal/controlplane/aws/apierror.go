package aws

import (
	"errors"
	"fmt"

	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/yairfalse/ilmarinen/internal/controlplane"
	healerrors "github.com/yairfalse/ilmarinen/internal/errors"
)

var notFoundCodes = map[string]bool{
	"InvalidInstanceID.NotFound":  true,
	"InvalidInstanceID.Malformed": true,
	"InvalidVolume.NotFound":      true,
	"DBInstanceNotFound":          true,
	"DBInstanceNotFoundFault":     true,
}

var permissionCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"UnauthorizedOperation": true,
}

// apiErrorCode returns the service error code, or "" for non-API errors
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isNotFound reports whether err means the resource does not exist
func isNotFound(err error) bool {
	var fault *rdstypes.DBInstanceNotFoundFault
	if errors.As(err, &fault) {
		return true
	}
	return notFoundCodes[apiErrorCode(err)]
}

// isTransportError reports whether the request failed before any response arrived
func isTransportError(err error) bool {
	var sendErr *smithyhttp.RequestSendError
	return errors.As(err, &sendErr)
}

// wrapAPIError maps AWS errors onto controlplane sentinels and guided errors
func wrapAPIError(service healerrors.Service, operation, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case healerrors.IsUserError(err):
		return err
	case isNotFound(err):
		return fmt.Errorf("%s %s: %w", operation, id, controlplane.ErrNotFound)
	case permissionCodes[apiErrorCode(err)]:
		return healerrors.PermissionError(service, operation, err)
	case isTransportError(err):
		return healerrors.NetworkError(service, fmt.Sprintf("the %s API (%s)", service, operation), err)
	default:
		return fmt.Errorf("%s %s: %w", operation, id, err)
	}
}
