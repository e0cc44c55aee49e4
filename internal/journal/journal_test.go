package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posthog/taskagent/internal/events"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalAppendAndList(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append("R1", events.New(events.KindStatus, "T1", "research",
		events.StatusData{Message: "started"})))
	require.NoError(t, j.Append("R1", events.New(events.KindToken, "T1", "research",
		events.TokenData{Text: "hello"})))
	require.NoError(t, j.Append("R2", events.New(events.KindStatus, "T2", "",
		events.StatusData{Message: "other task"})))

	entries, err := j.List("T1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "status", entries[0].Kind)
	assert.Equal(t, "research", entries[0].Phase)
	assert.Equal(t, "R1", entries[0].RunID)
	assert.Contains(t, entries[0].Data, "started")
	assert.Equal(t, "token", entries[1].Kind)
}

func TestJournalListLimitKeepsNewestInAppendOrder(t *testing.T) {
	j := openTestJournal(t)

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, j.Append("R1", events.New(events.KindStatus, "T1", "",
			events.StatusData{Message: msg})))
	}

	entries, err := j.List("T1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Data, "two")
	assert.Contains(t, entries[1].Data, "three")
}

func TestJournalNilData(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append("", events.New(events.KindMessageStart, "T1", "plan", nil)))

	entries, err := j.List("T1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Data)
}

func TestJournalListUnknownTask(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.List("nope", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
