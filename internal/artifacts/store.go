// Package artifacts provides durable per-task document storage under the
// repository's .posthog namespace. Artifacts are the resumability mechanism:
// a phase whose artifact already exists is skipped on re-run.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Namespace is the directory, relative to the repository root, that holds
// all task artifacts. Git operations treat paths under it specially.
const Namespace = ".posthog"

// Well-known artifact names.
const (
	NamePlan         = "plan.md"
	NameContext      = "context.md"
	NameRequirements = "requirements.md"
	NameResearch     = "research.json"
	NameTodos        = "todos.json"
)

// Type classifies an artifact for upload to the remote store.
type Type string

const (
	TypePlan      Type = "plan"
	TypeContext   Type = "context"
	TypeReference Type = "reference"
	TypeOutput    Type = "output"
	TypeArtifact  Type = "artifact"
)

// Store reads and writes named documents scoped by task ID.
// Writes are atomic and idempotent (last write wins); reads of missing
// artifacts report absence, never an error.
type Store struct {
	repoRoot string
}

// NewStore creates a store rooted at the given repository path.
// No directories are created until the first write.
func NewStore(repoRoot string) *Store {
	return &Store{repoRoot: repoRoot}
}

// Root returns the namespace directory for the whole store.
func (s *Store) Root() string {
	return filepath.Join(s.repoRoot, Namespace)
}

// Dir returns the directory holding a task's artifacts.
func (s *Store) Dir(taskID string) string {
	return filepath.Join(s.repoRoot, Namespace, taskID)
}

// Path returns the on-disk path of a named artifact.
func (s *Store) Path(taskID, name string) string {
	return filepath.Join(s.Dir(taskID), name)
}

// Write stores an artifact, creating the task directory on demand.
// Writing an existing name overwrites it.
func (s *Store) Write(taskID, name string, content []byte) error {
	if err := atomicWriteFile(s.Path(taskID, name), content, 0644); err != nil {
		return fmt.Errorf("write artifact %s/%s: %w", taskID, name, err)
	}
	return nil
}

// Read returns an artifact's content. The second result reports whether the
// artifact exists; a missing artifact is not an error.
func (s *Store) Read(taskID, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.Path(taskID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read artifact %s/%s: %w", taskID, name, err)
	}
	return data, true, nil
}

// Exists reports whether a named artifact is present.
func (s *Store) Exists(taskID, name string) bool {
	_, err := os.Stat(s.Path(taskID, name))
	return err == nil
}

// List returns the names of a task's artifacts, sorted. Hidden (dot-prefixed)
// entries and subdirectories are excluded. A missing task directory yields an
// empty list.
func (s *Store) List(taskID string) ([]string, error) {
	entries, err := os.ReadDir(s.Dir(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts for %s: %w", taskID, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// DeleteAll removes every artifact for a task, including the task directory.
func (s *Store) DeleteAll(taskID string) error {
	if err := os.RemoveAll(s.Dir(taskID)); err != nil {
		return fmt.Errorf("delete artifacts for %s: %w", taskID, err)
	}
	return nil
}

// InferType maps an artifact name to its upload type.
func InferType(name string) Type {
	switch {
	case name == NamePlan:
		return TypePlan
	case name == NameContext:
		return TypeContext
	case name == NameRequirements:
		return TypeReference
	case strings.HasPrefix(name, "output_"):
		return TypeOutput
	case strings.HasSuffix(name, ".md"):
		return TypeReference
	default:
		return TypeArtifact
	}
}

// InferContentType maps an artifact name to a MIME content type.
func InferContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".md"):
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// Artifact is a fully loaded document ready for upload.
type Artifact struct {
	Name        string
	Type        Type
	Content     []byte
	ContentType string
}

// Collect loads every listed artifact for a task, with inferred types.
func (s *Store) Collect(taskID string) ([]Artifact, error) {
	names, err := s.List(taskID)
	if err != nil {
		return nil, err
	}

	arts := make([]Artifact, 0, len(names))
	for _, name := range names {
		content, ok, err := s.Read(taskID, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		arts = append(arts, Artifact{
			Name:        name,
			Type:        InferType(name),
			Content:     content,
			ContentType: InferContentType(name),
		})
	}
	return arts, nil
}
