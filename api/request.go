package api

import (
	"context"

	"github.com/ambiyansyah-risyal/reqflow"
)

// TokenSource returns the current access token, or "" when signed out.
type TokenSource func() string

// NewRequester builds the application's flat requester: envelope aware, with
// a bearer token injected into every request.
func NewRequester(cfg reqflow.Config, token TokenSource, extra ...reqflow.Option) *reqflow.FlatRequester {
	opts := append(cfg.Options(),
		reqflow.WithOnRequest(func(_ context.Context, rc *reqflow.RequestConfig, _ *reqflow.State) (*reqflow.RequestConfig, error) {
			if token == nil {
				return rc, nil
			}
			if t := token(); t != "" {
				rc.Header.Set("Authorization", "Bearer "+t)
			}
			return rc, nil
		}),
		reqflow.WithOnError(func(_ context.Context, err error, state *reqflow.State) {
			state.PushErrMsg(err.Error())
		}),
	)
	opts = append(opts, extra...)
	return reqflow.NewFlat(opts...)
}
