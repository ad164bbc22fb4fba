// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers implements the HTTP Surface (spec C7): a thin verb
// layer over the Session Store for session CRUD, projecting the same
// mutations the realtime handlers use.
package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
)

// WriteJSON writes data (expected to be a map or struct whose JSON includes
// "success") with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes {success:true, ...extra} — the response shape spec
// §4.7/§6 calls for on every successful verb.
func WriteSuccess(w http.ResponseWriter, status int, extra map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	WriteJSON(w, status, body)
}

// WriteError writes {success:false, error:message} at status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]interface{}{"success": false, "error": message})
}
