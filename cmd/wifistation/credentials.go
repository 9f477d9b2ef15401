//go:build tinygo

package main

import _ "embed"

// If the build fails here, create ssid.text and password.text next to this file containing the
// network to join. Both are ignored by git.
var (
	//go:embed ssid.text
	wifiSSID string
	//go:embed password.text
	wifiPassword string
)
