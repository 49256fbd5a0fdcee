// Package templates embeds the default configuration and the dashboard
// template.
package templates

import "embed"

//go:embed config.yaml dashboard.md.tmpl shopfloor.md
var FS embed.FS
