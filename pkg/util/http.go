package util

import (
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteResponseErrorTo is a helper function that writes an error to
// a supplied http.ResponseWriter
func WriteResponseErrorTo(w http.ResponseWriter, key string, err error, code int) {
	payload, _err := json.Marshal(HTTPError{
		Key:     key,
		Message: err.Error(),
		Code:    code,
	})

	if _err != nil {
		http.Error(w, "failed to marshal error response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(code)
	w.Write(payload)
}
