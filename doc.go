// Package gopaytr integrates the PayTR hosted payment page (iframe API)
// into Go web services.
//
// # Overview
//
// A payment is a two message exchange:
//
//	┌─────────────────┐  get-token   ┌─────────────────┐
//	│                 │─────────────►│                 │
//	│    Your App     │◄─────────────│      PayTR      │
//	│   (gopaytr)     │   callback   │                 │
//	└─────────────────┘              └─────────────────┘
//
// The application signs a payment request and exchanges it for an iframe
// token; PayTR later posts the payment result to the callback route, whose
// signature is verified before the outcome is handed to the application.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/mstgnz/gopaytr/provider"
//	    "github.com/mstgnz/gopaytr/provider/paytr"
//	)
//
//	func main() {
//	    gateway := paytr.NewProvider(paytr.Config{
//	        Credentials: provider.Credentials{
//	            MerchantID:   "123456",
//	            MerchantKey:  "merchant-key",
//	            MerchantSalt: "merchant-salt",
//	        },
//	        TestMode: true,
//	    })
//
//	    result, err := gateway.RequestToken(context.Background(), provider.TokenRequest{
//	        Customer: provider.Customer{
//	            Email:     "buyer@example.com",
//	            Name:      "Ali Veli",
//	            IPAddress: "85.34.78.112",
//	        },
//	        Basket:      []provider.BasketRow{provider.NewBasketRow("Widget", 10.50, 1)},
//	        OrderID:     "order-123",
//	        TotalAmount: 10.50,
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if !result.Success {
//	        log.Fatal(result.Message)
//	    }
//	    log.Println(gateway.IframeURL(result.Token))
//	}
//
// # Service
//
// cmd/main.go runs the same gateway as an HTTP service: the callback route
// (default /payment/paytr/callback), success and fail redirect routes, and
// an authenticated POST /v1/paytr/token API. Configuration comes from
// environment variables, optionally loaded from a .env file.
package gopaytr
