package moderation

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// Dictionary words are chosen so they never collide with ordinary words
// (e.g. "he" inside "The").
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dictionary := []string{"badger", "snake", "mushroom"}
	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "The badger is here",
			expected: "The ****** is here",
			words:    []string{"badger"},
		},
		{
			name:     "Multiple occurrences and preserved spacing",
			input:    "badger badger badger",
			expected: "****** ****** ******",
			words:    []string{"badger", "badger", "badger"},
		},
		{
			name: "Leet speak and internal punctuation",
			// B (index 9) . 4 . d . g . € r (index 20) -> 10 characters
			input:    "Look at B.4.d.g.€r !",
			expected: "Look at ********** !",
			words:    []string{"badger"},
		},
		{
			name:     "Uppercase and extreme noise",
			input:    "S-N-A-K-E is a B.A.D.G.E.R",
			expected: "********* is a ***********",
			words:    []string{"snake", "badger"},
		},
		{
			name:     "Accents and special characters (UTF-8)",
			input:    "Un été avec un badger",
			expected: "Un été avec un ******",
			words:    []string{"badger"},
		},
		{
			name:     "Chinese text around a word",
			input:    "反馈：snake 出现了",
			expected: "反馈：***** 出现了",
			words:    []string{"snake"},
		},
		{
			name:     "Word adjacent to trailing punctuation",
			input:    "I love badger!",
			expected: "I love ******!",
			words:    []string{"badger"},
		},
		{
			name:     "Nothing to censor",
			input:    "The relay is amazing",
			expected: "The relay is amazing",
			words:    nil,
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := mod.Censor(tt.input)
			req.Equal(tt.expected, content, "test=%s,", tt.name)
			req.Equal(tt.words, words, "expected=%s,words=%s", tt.expected, words)
		})
	}
}

func TestModerator_CornerCases(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given real noise and not Leet Speak associated
	dictionary := []string{"...", ",,,", "", "badger"}

	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	// Then the sentence is censored
	input := "The badger is safe"
	expected := "The ****** is safe"
	content, words := mod.Censor(input)
	req.Equal(expected, content)
	req.Equal([]string{"badger"}, words)

	// Then real noise is uncensored
	input = "Hello ..."
	expected = "Hello ..."
	content, words = mod.Censor(input)
	req.Equal(expected, content)
	req.Nil(words)
}

func TestModerator_Without_Words_Is_Passthrough(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator(nil, replacementChar, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)

	content, words := mod.Censor("badger badger")
	req.Equal("badger badger", content)
	req.Nil(words)

	var disabled *Moderator
	content, _ = disabled.Censor("anything")
	req.Equal("anything", content)
}

func TestLoadCensoredWords(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "words.txt")
	req.NoError(os.WriteFile(path, []byte("# forbidden\nbadger\r\n\n  snake  \n"), 0o644))

	data, err := LoadCensoredWords(path)
	req.NoError(err)
	req.Equal([]string{"badger", "snake"}, data.Words)
	req.Equal([]string{"words"}, data.Languages)

	_, err = LoadCensoredWords(filepath.Join(t.TempDir(), "missing.txt"))
	req.Error(err)
}

func TestLoadCensoredWords_Directory(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	req.NoError(os.WriteFile(filepath.Join(dir, "en.txt"), []byte("snake\nbadger\n"), 0o644))
	req.NoError(os.WriteFile(filepath.Join(dir, "fr.txt"), []byte("serpent\nsnake\n"), 0o644))
	req.NoError(os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a dictionary"), 0o644))

	// When a directory of dictionaries is loaded
	data, err := LoadCensoredWords(dir)

	// Then words are merged without duplicates
	req.NoError(err)
	req.Equal([]string{"badger", "serpent", "snake"}, data.Words)
	req.ElementsMatch([]string{"en", "fr"}, data.Languages)
}

func TestLoadDictionaries_FS(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"de.txt": {Data: []byte("schlange\n")},
		"sub":    {Mode: fs.ModeDir},
	}

	data, err := LoadDictionaries(fsys)

	req.NoError(err)
	req.Equal([]string{"schlange"}, data.Words)
	req.Equal([]string{"de"}, data.Languages)
}
