package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch Kind(err) {
	case ClassUnauthorized:
		return status.Error(codes.Unauthenticated, err.Error())
	case ClassInvalidPayload:
		return status.Error(codes.InvalidArgument, err.Error())
	case ClassNotFound:
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, PublicMessage(err))
	}
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case ClassUnauthorized:
		return http.StatusUnauthorized
	case ClassInvalidPayload:
		return http.StatusBadRequest
	case ClassNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
