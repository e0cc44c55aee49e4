package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreWriteRead(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Write("task-1", NamePlan, []byte("# Plan\n")))

	data, ok, err := store.Read("task-1", NamePlan)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "# Plan\n", string(data))
}

func TestStoreReadMissingIsNotError(t *testing.T) {
	store := NewStore(t.TempDir())

	data, ok, err := store.Read("task-1", NamePlan)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestStoreWriteOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Write("task-1", NamePlan, []byte("v1")))
	require.NoError(t, store.Write("task-1", NamePlan, []byte("v2")))

	data, ok, err := store.Read("task-1", NamePlan)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(data))
}

func TestStoreNoDirectoryUntilFirstWrite(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	// Reads and listings must not create the namespace.
	_, _, _ = store.Read("task-1", NamePlan)
	_, _ = store.List("task-1")
	_, err := os.Stat(filepath.Join(root, Namespace))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Write("task-1", NamePlan, []byte("x")))
	_, err = os.Stat(store.Dir("task-1"))
	assert.NoError(t, err)
}

func TestStoreList(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Write("task-1", "b.md", []byte("b")))
	require.NoError(t, store.Write("task-1", "a.md", []byte("a")))
	require.NoError(t, store.Write("task-1", ".hidden", []byte("h")))
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir("task-1"), "sub"), 0755))

	names, err := store.List("task-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, names)
}

func TestStoreListMissingTask(t *testing.T) {
	store := NewStore(t.TempDir())

	names, err := store.List("no-such-task")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStoreDeleteAll(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Write("task-1", NamePlan, []byte("p")))
	require.NoError(t, store.Write("task-1", NameResearch, []byte("{}")))
	require.NoError(t, store.DeleteAll("task-1"))

	assert.False(t, store.Exists("task-1", NamePlan))
	_, err := os.Stat(store.Dir("task-1"))
	assert.True(t, os.IsNotExist(err))

	// Deleting an absent task is fine.
	assert.NoError(t, store.DeleteAll("task-1"))
}

func TestInferType(t *testing.T) {
	tests := []struct {
		name string
		want Type
	}{
		{NamePlan, TypePlan},
		{NameContext, TypeContext},
		{NameRequirements, TypeReference},
		{"output_build.md", TypeOutput},
		{"notes.md", TypeReference},
		{NameResearch, TypeArtifact},
		{NameTodos, TypeArtifact},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferType(tt.name), tt.name)
	}
}

func TestInferContentType(t *testing.T) {
	assert.Equal(t, "application/json", InferContentType("research.json"))
	assert.Equal(t, "text/markdown", InferContentType("plan.md"))
	assert.Equal(t, "text/plain", InferContentType("raw.log"))
}

func TestCollect(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Write("task-1", NamePlan, []byte("# Plan")))
	require.NoError(t, store.Write("task-1", NameResearch, []byte(`{"questions":[]}`)))

	arts, err := store.Collect("task-1")
	require.NoError(t, err)
	require.Len(t, arts, 2)

	assert.Equal(t, NamePlan, arts[0].Name)
	assert.Equal(t, TypePlan, arts[0].Type)
	assert.Equal(t, "text/markdown", arts[0].ContentType)
	assert.Equal(t, NameResearch, arts[1].Name)
	assert.Equal(t, "application/json", arts[1].ContentType)
}
