package provider

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ClassifyGRPC maps a transport error from a gRPC-backed provider into
// the package error taxonomy. Unrecognized codes pass through unchanged.
func ClassifyGRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", ErrThrottled, st.Message())
	case codes.OutOfRange, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrLimitExceeded, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	default:
		return err
	}
}
