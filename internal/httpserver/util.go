package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
)

const maxBodyBytes = 64 << 10

// decodeJSON decodes a bounded JSON request body into dest, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	if decoder.More() {
		return io.ErrUnexpectedEOF
	}
	return nil
}
