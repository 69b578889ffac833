package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
)

const (
	// PresenterTokenHeader is the header name for the presenter token.
	PresenterTokenHeader = "X-Presenter-Token"
)

// NewPresenterAuthInterceptor creates an interceptor that validates the
// presenter token on unary calls. An empty configured token rejects every
// call.
func NewPresenterAuthInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			got := req.Header().Get(PresenterTokenHeader)
			if got == "" || token == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, nil)
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, nil)
			}
			return next(ctx, req)
		}
	}
}
