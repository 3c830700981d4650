package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestJournal opens a fresh journal in a temp dir and closes it on cleanup.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}
