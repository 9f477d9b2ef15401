//go:build tinygo

package fetch

import "net/http"

// configureTLS refuses transport security on device builds; the coprocessor drivers only carry
// plain TCP here.
func configureTLS(*http.Transport) error {
	return ErrTLSUnsupported
}
