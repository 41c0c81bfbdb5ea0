// Package reqflow wraps an HTTP client in a request pipeline with two calling
// conventions:
//
//   - Requester returns (payload, error)
//   - FlatRequester returns a *FlatResult and never an error value
//
// Every request gets a correlation id header and, unless the caller passes
// its own Signal, a cancellation handle that CancelAllRequest aborts. Blob
// and arrayBuffer bodies that turn out to be JSON are parsed before the
// backend success predicate runs; json responses whose envelope reports a
// failure go through OnBackendFail, which may recover them, and otherwise
// reject with a Backend error. OnError sees every failure exactly once.
//
// Typical usage:
//
//	r := reqflow.NewFlat(
//	    reqflow.WithBaseURL("https://api.example.com"),
//	    reqflow.WithBackendSuccess(reqflow.EnvelopeSuccess("0")),
//	    reqflow.WithTransform(reqflow.EnvelopeTransform),
//	    reqflow.WithOnError(func(ctx context.Context, err error, s *reqflow.State) {
//	        s.PushErrMsg(err.Error())
//	    }),
//	)
//	res := r.Request(ctx, &reqflow.RequestConfig{URL: "/captcha/image"})
//	if res.Err != nil {
//	    // res.Response is set when the server answered
//	}
//
// Retries are off by default; enable them with WithMaxRetries or
// WithRetryPolicy.
package reqflow
