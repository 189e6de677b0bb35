package service

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/chamaledger/internal/apperr"
)

// ErrorKindHeader carries the apperr kind of a failed call so clients can
// branch on it without parsing messages.
const ErrorKindHeader = "Chama-Error-Kind"

var kindCodes = map[apperr.Kind]connect.Code{
	apperr.KindValidation:    connect.CodeInvalidArgument,
	apperr.KindAuthorization: connect.CodePermissionDenied,
	apperr.KindConflict:      connect.CodeAborted,
	apperr.KindTransient:     connect.CodeUnavailable,
	apperr.KindNotFound:      connect.CodeNotFound,
	apperr.KindInternal:      connect.CodeInternal,
}

// toConnectError maps an apperr kind onto a Connect code. Errors that are
// already Connect errors pass through unchanged.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}
	kind := apperr.KindOf(err)
	ce := connect.NewError(kindCodes[kind], err)
	ce.Meta().Set(ErrorKindHeader, kind.String())
	return ce
}
