// Package provider holds the value types, error taxonomy and transport
// shared by hosted payment page integrations.
//
// # Core Concepts
//
//   - Gateway: the interface a hosted payment page integration implements
//   - TokenRequest/TokenResult: the payment initiation exchange
//   - CallbackPayload/Outcome: the verified server-to-server notification
//   - ProviderHTTPClient: the outbound HTTP client used for provider APIs
//
// # Errors
//
// Problems with the caller's configuration or input are returned as errors
// before any network I/O:
//
//	result, err := gateway.RequestToken(ctx, request)
//	var verr *provider.ValidationError
//	switch {
//	case errors.Is(err, provider.ErrMissingCredentials):
//	    // operator must configure the merchant
//	case errors.As(err, &verr):
//	    // reject the request, verr.Field names the culprit
//	case err == nil && !result.Success:
//	    // result.Kind is transport, protocol or provider
//	}
//
// # Outcomes
//
// HandleCallback returns either PaymentSucceeded or PaymentFailed:
//
//	switch o := outcome.(type) {
//	case provider.PaymentSucceeded:
//	    markPaid(o.OrderID, o.Amount)
//	case provider.PaymentFailed:
//	    markFailed(o.OrderID, o.Reason)
//	}
package provider
