package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "acquisition_report.csv")
	processed := time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC)
	rows := []SceneRow{
		NewSceneRow("2024-05-16 to 2024-06-15", "22KGA", "uuid-a",
			time.Date(2024, 6, 10, 13, 22, 41, 0, time.UTC), processed, 3.5, 97.25, "/data/tmp/Se2_22KGA.tif"),
		NewSceneRow("2024-05-16 to 2024-06-15", "22KGB", "uuid-b",
			time.Date(2024, 6, 12, 13, 22, 41, 0, time.UTC), processed, 11, 100, "/data/tmp/Se2_22KGB.tif"),
	}

	require.NoError(t, Write(path, rows))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []SceneRow
	require.NoError(t, gocsv.UnmarshalFile(f, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "uuid-a", got[0].SceneID)
	assert.Equal(t, "2024-06-10 13:22:41", got[0].Acquired)
	assert.Equal(t, "2024-06-20 10:00:00", got[0].Processed)
	assert.Equal(t, 97.25, got[0].CoveragePct)
}

func TestWriteEmptyManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acquisition_report.csv")
	require.NoError(t, Write(path, nil))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
