package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var statusByCode = map[common.Code]codes.Code{
	common.CodeNotFound:           codes.NotFound,
	common.CodeDataIntegrity:      codes.Internal,
	common.CodeDuplicateKey:       codes.AlreadyExists,
	common.CodeDecryption:         codes.Internal,
	common.CodePolicy:             codes.InvalidArgument,
	common.CodeExternal:           codes.Unavailable,
	common.CodeUnauthorized:       codes.Unauthenticated,
	common.CodeInternal:           codes.Internal,
	common.CodePermissionDenied:   codes.PermissionDenied,
	common.CodeFailedPrecondition: codes.FailedPrecondition,
}

// statusError logs err and converts it to a gRPC status. Only the
// user-facing message of err leaves the server.
func (s *GRPCServer) statusError(ctx context.Context, method string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	logging.LogError(ctx, s.logger, "request failed", err, "method", method)

	code, ok := statusByCode[common.CodeOf(err)]
	if !ok {
		code = codes.Internal
	}
	msg := common.UserMessageOf(err)
	if msg == "" {
		msg = defaultMessage(code)
	}
	return status.Error(code, msg)
}

func defaultMessage(c codes.Code) string {
	switch c {
	case codes.NotFound:
		return "not found"
	case codes.AlreadyExists:
		return "already exists"
	case codes.InvalidArgument:
		return "invalid request"
	case codes.Unavailable:
		return "service unavailable"
	case codes.Unauthenticated:
		return "unauthenticated"
	case codes.PermissionDenied:
		return "not allowed"
	case codes.FailedPrecondition:
		return "operation not allowed in the current state"
	default:
		return "internal error"
	}
}
