//go:build !tinygo

package fetch

import (
	"fmt"
	"net/http"

	"golang.org/x/net/http2"
)

func configureTLS(tr *http.Transport) error {
	if err := http2.ConfigureTransport(tr); err != nil {
		return fmt.Errorf("configure http2: %w", err)
	}
	return nil
}
