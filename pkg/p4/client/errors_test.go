package client

import (
	"context"
	"errors"
	"testing"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNewClientErrorDetails(t *testing.T) {
	st := status.New(codes.Unknown, "write batch failed")
	st, err := st.WithDetails(
		&p4v1.Error{CanonicalCode: int32(codes.OK)},
		&p4v1.Error{CanonicalCode: int32(codes.NotFound), Message: "no such entry", Space: "targets"},
	)
	require.NoError(t, err)

	ce := newClientError(st.Err())
	assert.Equal(t, codes.Unknown, ce.Code)
	require.Len(t, ce.Details, 2)
	assert.True(t, ce.Details[0].IsOK())
	assert.False(t, ce.Details[1].IsOK())
	assert.True(t, ce.Details[1].IsNotFound())

	failed := ce.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Index)
	assert.True(t, ce.OnlyNotFound())
	assert.Contains(t, ce.Error(), "no such entry")
}

func TestOnlyNotFoundMixed(t *testing.T) {
	st := status.New(codes.Unknown, "failed")
	st, err := st.WithDetails(
		&p4v1.Error{CanonicalCode: int32(codes.NotFound)},
		&p4v1.Error{CanonicalCode: int32(codes.PermissionDenied)},
	)
	require.NoError(t, err)
	ce := newClientError(st.Err())
	assert.False(t, ce.OnlyNotFound())
}

func TestNewClientErrorPlain(t *testing.T) {
	ce := newClientError(errors.New("boom"))
	assert.Equal(t, codes.Unknown, ce.Code)
	assert.Empty(t, ce.Details)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(status.Error(codes.Unavailable, "connecting")))
	assert.True(t, IsTransient(status.Error(codes.DeadlineExceeded, "timeout")))
	assert.False(t, IsTransient(status.Error(codes.InvalidArgument, "bad update")))
	assert.False(t, IsTransient(nil))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(context.Canceled))
	assert.True(t, IsCancelled(status.Error(codes.Canceled, "rpc cancelled")))
	assert.False(t, IsCancelled(errors.New("other")))
}
