package storage

import (
	"feedback-relay/errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestArtifactStore_Save_Then_Open(t *testing.T) {
	req := require.New(t)
	at := time.Unix(1714557600, 0)
	store, err := NewArtifactStore(t.TempDir(), slog.Default(), func() time.Time { return at })
	req.NoError(err)

	data := []byte("%PDF-1.4 fake pdf body")
	artifact, err := store.Save("Quarterly Report.PDF", data)
	req.NoError(err)
	req.Equal("file_1714557600000000000.pdf", artifact.StoredName)
	req.Equal(int64(len(data)), artifact.Size)
	req.Equal("application/pdf", artifact.MimeType)

	f, stat, err := store.Open(artifact.StoredName)
	req.NoError(err)
	defer f.Close()
	body, err := io.ReadAll(f)
	req.NoError(err)
	req.Equal(data, body)
	req.Equal(artifact.Size, stat.Size)
	req.Equal("application/pdf", stat.MimeType)
}

func TestArtifactStore_Collision_Gets_New_Name(t *testing.T) {
	req := require.New(t)
	at := time.Unix(1714557600, 0)
	store, err := NewArtifactStore(t.TempDir(), slog.Default(), func() time.Time { return at })
	req.NoError(err)

	// Given a frozen clock, two uploads land on the same timestamp
	first, err := store.Save("a.txt", []byte("one"))
	req.NoError(err)
	second, err := store.Save("a.txt", []byte("two"))
	req.NoError(err)

	req.NotEqual(first.StoredName, second.StoredName)
	entries, err := os.ReadDir(store.Dir())
	req.NoError(err)
	req.Len(entries, 2)
}

func TestArtifactStore_Path_Rejects_Traversal(t *testing.T) {
	req := require.New(t)
	store, err := NewArtifactStore(t.TempDir(), slog.Default(), nil)
	req.NoError(err)

	for _, name := range []string{"", ".", "..", "../etc/passwd", "sub/file.txt", `..\secret`, "/abs"} {
		_, err = store.Path(name)
		req.ErrorIs(err, errors.ErrInvalidFile, name)
	}

	path, err := store.Path("file_1.txt")
	req.NoError(err)
	req.Equal(filepath.Join(store.Dir(), "file_1.txt"), path)
}

func TestArtifactStore_Stat_Missing(t *testing.T) {
	req := require.New(t)
	store, err := NewArtifactStore(t.TempDir(), slog.Default(), nil)
	req.NoError(err)

	_, err = store.Stat("file_404.txt")
	req.ErrorIs(err, errors.ErrFileNotFound)
}

func TestSanitizeExt(t *testing.T) {
	req := require.New(t)
	cases := map[string]string{
		"report.pdf":           ".pdf",
		"ARCHIVE.TAR.GZ":       ".gz",
		"noext":                "",
		"evil.p h p":           "",
		"../../x.sh":           ".sh",
		`C:\Users\me\logo.png`: ".png",
		"weird.日本":             "",
		"long.abcdefghijklmnopq": "",
	}
	for input, expected := range cases {
		req.Equal(expected, sanitizeExt(input), input)
	}
}
