// Package api embeds the HTTP API description.
package api

import "embed"

//go:embed openapi.yaml
var FS embed.FS
