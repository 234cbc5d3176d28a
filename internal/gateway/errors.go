package gateway

import (
	"errors"
	"fmt"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/models"
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidChannelType = errors.New("invalid channel type")
	ErrUnavailable        = errors.New("membership directory unavailable")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrGatewayStopped     = errors.New("gateway stopped")
)

// ForbiddenError explains why an authorization check failed. It matches
// ErrForbidden under errors.Is.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return "forbidden: " + e.Reason }

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

func forbidden(reason string) error { return &ForbiddenError{Reason: reason} }

// Code maps an action error to the code sent in a negative ack.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return models.CodeForbidden
	case errors.Is(err, ErrNotFound):
		return models.CodeNotFound
	case errors.Is(err, ErrInvalidChannelType):
		return models.CodeInvalidChannelType
	case errors.Is(err, models.ErrUnknownAction):
		return models.CodeUnknownAction
	case errors.Is(err, models.ErrMissingChannelID),
		errors.Is(err, models.ErrMalformedAction),
		errors.Is(err, models.ErrMissingSignalData):
		return models.CodeBadRequest
	default:
		return models.CodeUnavailable
	}
}

// AuthReason labels a handshake failure for logs, metrics and the close
// frame sent to the peer.
func AuthReason(err error) string {
	switch {
	case errors.Is(err, ErrGatewayStopped):
		return "gateway_stopped"
	case errors.Is(err, auth.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, auth.ErrWrongTokenKind):
		return "wrong_token_kind"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid_token"
	default:
		return "snapshot_failed"
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
