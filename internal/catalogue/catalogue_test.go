package catalogue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Catalogue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogue.db")
	c, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAssignIDsReservesConsecutiveRange(t *testing.T) {
	c := openTest(t)

	first, last, err := c.AssignIDs(5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(5), last)

	first2, last2, err := c.AssignIDs(3)
	require.NoError(t, err)
	assert.Equal(t, int64(6), first2)
	assert.Equal(t, int64(8), last2)
}

func TestCommitPassagesIsIdempotentOnID(t *testing.T) {
	c := openTest(t)
	first, _, err := c.AssignIDs(1)
	require.NoError(t, err)

	p := Passage{ID: first, SourcePath: "a.pdf", PageNumber: 1, ChunkIndex: 0, Text: "original"}
	require.NoError(t, c.CommitPassages([]Passage{p}))

	p.Text = "updated"
	require.NoError(t, c.CommitPassages([]Passage{p}))

	got, err := c.GetPassagesByIDs([]int64{first})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "updated", got[0].Text)
}

func TestGetPassagesByIDsPreservesOrderAndFailsOnMissing(t *testing.T) {
	c := openTest(t)
	first, last, err := c.AssignIDs(3)
	require.NoError(t, err)

	passages := []Passage{
		{ID: first, SourcePath: "a.pdf", PageNumber: 1, ChunkIndex: 0, Text: "one"},
		{ID: first + 1, SourcePath: "a.pdf", PageNumber: 1, ChunkIndex: 1, Text: "two"},
		{ID: last, SourcePath: "a.pdf", PageNumber: 2, ChunkIndex: 0, Text: "three"},
	}
	require.NoError(t, c.CommitPassages(passages))

	got, err := c.GetPassagesByIDs([]int64{last, first})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Text)
	assert.Equal(t, "one", got[1].Text)

	_, err = c.GetPassagesByIDs([]int64{first, 9999})
	assert.Error(t, err)
}

func TestBeginFinishFileLifecycle(t *testing.T) {
	c := openTest(t)

	rec, err := c.BeginFile("doc.pdf", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)

	require.NoError(t, c.FinishFile("doc.pdf", 1, 10, true))

	got, found, err := c.FileState("doc.pdf")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusIndexed, got.Status)
	assert.Equal(t, int64(1), got.FirstPassageID)
	assert.Equal(t, int64(10), got.LastPassageID)
}

func TestRecordRangeSurvivesWithoutFinish(t *testing.T) {
	c := openTest(t)
	_, err := c.BeginFile("partial.pdf", "h")
	require.NoError(t, err)
	require.NoError(t, c.RecordRange("partial.pdf", 1, 5))

	got, found, err := c.FileState("partial.pdf")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, int64(1), got.FirstPassageID)
	assert.Equal(t, int64(5), got.LastPassageID)
}

func TestShouldSkipMatchesOnHashAndIndexedStatus(t *testing.T) {
	rec := FileRecord{ContentHash: "abc", Status: StatusIndexed}
	assert.True(t, ShouldSkip(rec, true, "abc"))
	assert.False(t, ShouldSkip(rec, true, "different"))
	assert.False(t, ShouldSkip(FileRecord{Status: StatusPending}, true, "abc"))
	assert.False(t, ShouldSkip(FileRecord{}, false, "abc"))
}

func TestCountsReflectsPassagesAndFiles(t *testing.T) {
	c := openTest(t)
	first, _, err := c.AssignIDs(2)
	require.NoError(t, err)
	require.NoError(t, c.CommitPassages([]Passage{
		{ID: first, SourcePath: "a.pdf", PageNumber: 1, ChunkIndex: 0, Text: "x"},
		{ID: first + 1, SourcePath: "a.pdf", PageNumber: 1, ChunkIndex: 1, Text: "y"},
	}))
	_, err = c.BeginFile("a.pdf", "h")
	require.NoError(t, err)

	counts, err := c.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Passages)
	assert.Equal(t, int64(1), counts.Files)
}

func TestPendingFilesListsOnlyPendingStatus(t *testing.T) {
	c := openTest(t)
	_, err := c.BeginFile("pending.pdf", "h1")
	require.NoError(t, err)
	_, err = c.BeginFile("done.pdf", "h2")
	require.NoError(t, err)
	require.NoError(t, c.FinishFile("done.pdf", 1, 1, true))

	pending, err := c.PendingFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"pending.pdf"}, pending)
}

func TestHashFileIsDeterministic(t *testing.T) {
	a := HashFile([]byte("content"))
	b := HashFile([]byte("content"))
	c := HashFile([]byte("different"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
