// Package handler provides HTTP handlers for the PrepQuest API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/prepquest/prepquest/internal/api/response"
)

// maxBodyBytes caps request bodies. No endpoint accepts more than a few
// kilobytes of JSON; explicit UID audiences are the largest legitimate
// payload.
const maxBodyBytes = 1 << 20

// decodeJSON decodes the request body into dst. On failure it writes a
// Problem response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.BadRequest(w, r, "Invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}
