// Package static embeds the assets served under /static/.
package static

import "embed"

//go:embed *.css *.js *.svg
var FS embed.FS
