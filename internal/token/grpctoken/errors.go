package grpctoken

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
)

var errBadRequest = errors.New("grpctoken: malformed request")

// mapErr converts token errors to gRPC statuses.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrInsufficientBalance):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, token.ErrInsufficientAllowance):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, token.ErrZeroAddress), errors.Is(err, token.ErrNegativeAmount), errors.Is(err, errBadRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC converts a gRPC status back to the token error it was made from.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, known := range []error{
		token.ErrInsufficientBalance,
		token.ErrInsufficientAllowance,
		token.ErrZeroAddress,
		token.ErrNegativeAmount,
	} {
		if st.Message() == known.Error() {
			return known
		}
	}
	return err
}
