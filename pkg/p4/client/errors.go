package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UpdateError describes the failure of one update within a Write batch.
type UpdateError struct {
	Index         int
	CanonicalCode codes.Code
	Code          int32
	Space         string
	Message       string
}

// IsOK reports whether this update actually succeeded. A failed batch
// carries one status per update; successful ones are OK.
func (u *UpdateError) IsOK() bool { return u.CanonicalCode == codes.OK }

// IsNotFound reports a NOT_FOUND failure, which strict=false swallows
// on DELETE and MODIFY.
func (u *UpdateError) IsNotFound() bool { return u.CanonicalCode == codes.NotFound }

func (u *UpdateError) Error() string {
	return fmt.Sprintf("update %d: %s (%s)", u.Index, u.Message, u.CanonicalCode)
}

// ClientError is a failed Write: the RPC status plus the per-update
// detail list reported by the switch.
type ClientError struct {
	Code    codes.Code
	Message string
	Details []*UpdateError
}

func (e *ClientError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "write failed: %s: %s", e.Code, e.Message)
	for _, d := range e.Details {
		if !d.IsOK() {
			fmt.Fprintf(&b, "; %s", d)
		}
	}
	return b.String()
}

// Failed returns the updates that did not succeed.
func (e *ClientError) Failed() []*UpdateError {
	var out []*UpdateError
	for _, d := range e.Details {
		if !d.IsOK() {
			out = append(out, d)
		}
	}
	return out
}

// OnlyNotFound reports whether every failed update failed with
// NOT_FOUND.
func (e *ClientError) OnlyNotFound() bool {
	failed := e.Failed()
	if len(failed) == 0 {
		return false
	}
	for _, d := range failed {
		if !d.IsNotFound() {
			return false
		}
	}
	return true
}

// newClientError converts a Write RPC error, pulling p4.v1.Error
// details out of the gRPC status.
func newClientError(err error) *ClientError {
	st, ok := status.FromError(err)
	if !ok {
		return &ClientError{Code: codes.Unknown, Message: err.Error()}
	}
	ce := &ClientError{Code: st.Code(), Message: st.Message()}
	for i, d := range st.Details() {
		if pe, ok := d.(*p4v1.Error); ok {
			ce.Details = append(ce.Details, &UpdateError{
				Index:         i,
				CanonicalCode: codes.Code(pe.GetCanonicalCode()),
				Code:          pe.GetCode(),
				Space:         pe.GetSpace(),
				Message:       pe.GetMessage(),
			})
		}
	}
	return ce
}

// IsTransient reports whether the error is a connectivity failure the
// supervisor absorbs: UNAVAILABLE, or a deadline expiring while waiting
// for the channel to become ready.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// IsCancelled reports a benign cancellation, either from the local
// context or from the RPC layer.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled
}
