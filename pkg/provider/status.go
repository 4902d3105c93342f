package provider

import (
	"fmt"
	"net/http"
)

// StatusLine returns the "{status} {statusText}" fallback error message for
// a response whose body carried no parseable error envelope.
func StatusLine(statusCode int, status string) string {
	if status != "" {
		return status
	}
	return fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode))
}
