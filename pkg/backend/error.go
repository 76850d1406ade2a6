package backend

import (
	"errors"
	"syscall"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	gcerrors "gocloud.dev/gcerrors"
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// blobErr maps a go-cloud blob error onto the upload error codes. Errors
// which are already upload errors are returned unchanged.
func blobErr(err error, ref string) error {
	if err == nil {
		return nil
	}
	var code httpresponse.Err
	if errors.As(err, &code) {
		return err
	}

	// Check for OS-level errors before go-cloud classification, since the
	// gcerrors default path wraps with %v and breaks the chain.
	if errors.Is(err, syscall.EISDIR) || errors.Is(err, syscall.EEXIST) {
		return httpresponse.ErrConflict.Withf("cannot overwrite directory with object: %q", ref)
	}
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return httpresponse.ErrNotFound.Withf("object %q not found", ref)
	case gcerrors.InvalidArgument:
		return httpresponse.ErrBadRequest.Withf("invalid argument for %q: %v", ref, err)
	case gcerrors.FailedPrecondition, gcerrors.AlreadyExists:
		return httpresponse.ErrConflict.Withf("precondition failed for %q: %v", ref, err)
	case gcerrors.Unimplemented:
		return httpresponse.ErrNotImplemented.Withf("%q: %v", ref, err)
	default:
		return httpresponse.ErrGatewayError.Withf("%q: %v", ref, err)
	}
}
