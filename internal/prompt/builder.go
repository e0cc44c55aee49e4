// Package prompt builds phase prompts from embedded templates and expands
// inline references. Expansion is a pure text transform: it reads files and
// URLs but never touches orchestrator state.
package prompt

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/posthog/taskagent/internal/task"
	"github.com/posthog/taskagent/templates"
)

// Builder renders per-phase prompts for a repository.
type Builder struct {
	repoPath string
	httpc    *http.Client
	logger   *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithHTTPClient overrides the client used for <url/> expansion.
func WithHTTPClient(h *http.Client) BuilderOption {
	return func(b *Builder) { b.httpc = h }
}

// WithLogger sets the builder's logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a builder rooted at the given repository path.
func NewBuilder(repoPath string, opts ...BuilderOption) *Builder {
	b := &Builder{
		repoPath: repoPath,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// promptVars is the data available to phase templates.
type promptVars struct {
	Title       string
	Description string
	RepoPath    string
	TaskID      string
}

// BuildPhasePrompt renders the template for a phase and expands inline
// references in the result.
func (b *Builder) BuildPhasePrompt(phaseID string, t *task.Task) (string, error) {
	raw, err := templates.Prompts.ReadFile("prompts/" + phaseID + ".md")
	if err != nil {
		return "", fmt.Errorf("no prompt template for phase %s: %w", phaseID, err)
	}

	tmpl, err := template.New(phaseID).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse prompt template %s: %w", phaseID, err)
	}

	var sb strings.Builder
	err = tmpl.Execute(&sb, promptVars{
		Title:       t.Title,
		Description: b.ExpandReferences(t.Description),
		RepoPath:    b.repoPath,
		TaskID:      t.ID,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt template %s: %w", phaseID, err)
	}
	return sb.String(), nil
}

var (
	fileRefPattern  = regexp.MustCompile(`<file\s+path="([^"]+)"\s*/>`)
	urlRefPattern   = regexp.MustCompile(`<url\s+href="([^"]+)"\s*/>`)
	errorRefPattern = regexp.MustCompile(`<error\s+id="([^"]+)"\s*/>`)
)

// ExpandReferences replaces inline reference tags with fetched content and
// human-readable labels. A reference that cannot be resolved degrades to its
// label instead of failing the prompt build.
func (b *Builder) ExpandReferences(s string) string {
	s = fileRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		path := fileRefPattern.FindStringSubmatch(m)[1]
		full := path
		if !filepath.IsAbs(full) {
			full = filepath.Join(b.repoPath, path)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			b.logger.Warn("could not expand file reference", "path", path, "error", err)
			return fmt.Sprintf("[file: %s (unreadable)]", path)
		}
		return fmt.Sprintf("File %s:\n```\n%s\n```", path, strings.TrimRight(string(data), "\n"))
	})

	s = urlRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		href := urlRefPattern.FindStringSubmatch(m)[1]
		body, err := b.fetch(href)
		if err != nil {
			b.logger.Warn("could not expand url reference", "url", href, "error", err)
			return fmt.Sprintf("[url: %s]", href)
		}
		return fmt.Sprintf("Content of %s:\n%s", href, body)
	})

	s = errorRefPattern.ReplaceAllString(s, "[error report $1]")
	return s
}

func (b *Builder) fetch(href string) (string, error) {
	resp, err := b.httpc.Get(href)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	// Cap fetched content; prompts should not balloon on a huge page.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
