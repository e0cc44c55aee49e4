// Package task defines the task model the orchestrator operates on.
// Tasks are owned by the remote store; this side only reads them.
package task

import (
	"regexp"
	"strings"
)

// Task is an externally owned work item. The orchestrator never mutates a
// task; it only derives execution state (branches, artifacts, runs) from it.
type Task struct {
	ID                string `json:"id"`
	Slug              string `json:"slug,omitempty"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	OriginProduct     string `json:"origin_product,omitempty"`
	PrimaryRepository string `json:"primary_repository,omitempty"`
}

// EffectiveSlug returns the task slug, falling back to the ID when the
// remote record carries none.
func (t *Task) EffectiveSlug() string {
	if t.Slug != "" {
		return t.Slug
	}
	return t.ID
}

var (
	slugUnsafe   = regexp.MustCompile(`[^a-z0-9-]+`)
	slugCollapse = regexp.MustCompile(`-+`)
)

// Slugify converts free text into a branch-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugUnsafe.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
