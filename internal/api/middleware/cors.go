// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import "net/http"

// AllowedOrigin is the value written to Access-Control-Allow-Origin. It
// defaults to "*" and is overridden at startup from CORS_ORIGIN when set
// (internal/config), before the router is built.
var AllowedOrigin = "*"

// CORS is middleware that applies a single configurable allowed origin to
// every response and short-circuits preflight OPTIONS requests, in the same
// terse single-purpose-middleware style as Logging and Recovery.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
