package moderation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Startup cost of a large word list: file load plus automaton build.
func Test_Moderation_Startup_Benchmark(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "words.txt")

	wordCount := 100_000
	var sb strings.Builder
	for i := 0; i < wordCount; i++ {
		fmt.Fprintf(&sb, "word_%d\n", i)
	}
	req.NoError(os.WriteFile(path, []byte(sb.String()), 0o644))

	startLoad := time.Now()
	data, err := LoadCensoredWords(path)
	req.NoError(err)
	req.Len(data.Words, wordCount)
	t.Logf("Loading %d words: %v", wordCount, time.Since(startLoad))

	startBuild := time.Now()
	_, err = NewModerator(data.Words, '*', slog.Default())
	req.NoError(err)
	t.Logf("Building automaton: %v", time.Since(startBuild))
	t.Logf("Total startup time for moderation: %v", time.Since(startLoad))
}
