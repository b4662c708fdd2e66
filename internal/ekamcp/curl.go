package ekamcp

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// buildCurlCommand renders an equivalent command-line reproduction of a
// request for debugging. The Authorization credential is truncated so the
// command is safe to paste into logs or bug reports.
func buildCurlCommand(method, rawURL string, headers http.Header, body []byte) string {
	parts := []string{"curl", "-X", method}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value := headers.Get(k)
		if strings.EqualFold(k, "Authorization") {
			value = redactCredential(value)
		}
		parts = append(parts, fmt.Sprintf("-H '%s: %s'", k, value))
	}

	if len(body) > 0 {
		parts = append(parts, fmt.Sprintf("-d '%s'", body))
	}

	parts = append(parts, fmt.Sprintf("'%s'", rawURL))
	return strings.Join(parts, " ")
}

// redactCredential keeps the auth scheme but masks the token itself.
func redactCredential(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok {
		return maskToken(value)
	}
	return scheme + " " + maskToken(token)
}
