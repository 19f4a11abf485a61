package httpserver

import (
	"crypto/subtle"
	"net/http"

	"github.com/CedrosPay/cardcheckout/pkg/responders"

	apierrors "github.com/CedrosPay/cardcheckout/internal/errors"
)

// adminMetricsAuth guards /metrics with "Authorization: Bearer <key>".
// An empty key leaves the endpoint open.
func adminMetricsAuth(apiKey string) func(http.Handler) http.Handler {
	expected := []byte("Bearer " + apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				responders.JSON(w, http.StatusUnauthorized,
					apierrors.NewErrorResponse(apierrors.ErrCodeInvalidField, "Invalid or missing admin API key", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
