// Package handler provides the HTTP handlers of the gopaytr service.
//
// # PayTR Handler
//
// PaytrHandler serves the public PayTR routes and the authenticated token
// endpoint:
//
//	payments := handler.NewPaytrHandler(gateway, paytrCfg, validate,
//	    handler.WithOutcomeHandler(outcomes),
//	    handler.WithEventRecorder(osLogger),
//	    handler.WithMetrics(paytrMetrics),
//	)
//
//	r.Post("/payment/paytr/callback", payments.Callback)
//	r.Get("/payment/paytr/success", payments.Success)
//	r.Get("/payment/paytr/fail", payments.Fail)
//	r.Post("/v1/paytr/token", payments.RequestToken)
//
// Callback verifies the notification hash and answers with the plain text
// body "OK", which PayTR requires before it stops retrying. A notification
// with a bad hash is answered with 400 and never reaches the outcome handler.
//
// Success and Fail redirect the buyer's browser to the configured page and
// leave a short-lived flash cookie with the configured message.
//
// # Token Request
//
//	POST /v1/paytr/token
//	Headers:
//	  Authorization: Bearer your-api-key
//	  Content-Type: application/json
//
//	Body:
//	{
//	  "orderId": "order123",
//	  "totalAmount": 150.75,
//	  "customer": {"email": "buyer@example.com", "name": "Ayse Yilmaz"},
//	  "basket": [["Kitap", 150.75, 1]]
//	}
//
// A successful response carries the token and the iframe URL:
//
//	{
//	  "success": true,
//	  "message": "Token created",
//	  "data": {
//	    "token": "...",
//	    "iframeUrl": "https://www.paytr.com/odeme/guvenli/...",
//	    "merchantOid": "order123"
//	  }
//	}
//
// Status codes:
//
//   - 400 Bad Request: malformed body or missing order fields
//   - 422 Unprocessable Entity: PayTR rejected the request
//   - 500 Internal Server Error: merchant credentials are not configured
//   - 502 Bad Gateway: PayTR could not be reached or answered garbage
//
// # Events and Health
//
// EventsHandler exposes the payment events stored in OpenSearch per order,
// recent failures and aggregated stats. HealthHandler reports the gateway,
// the credential store and event logging.
package handler
