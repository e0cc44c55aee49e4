// Package templates provides embedded phase prompt templates.
package templates

import "embed"

// Prompts contains the per-phase prompt templates rendered by the prompt
// builder.
//
//go:embed prompts/*.md
var Prompts embed.FS
