package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"classtrack/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Store {
		s, err := NewStore(filepath.Join(t.TempDir(), "classtrack.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
