package moderation

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// CensoredData carries the loaded words and the dictionaries they came from.
type CensoredData struct {
	Words     []string
	Languages []string
}

// LoadCensoredWords reads either one word list or a directory of per-language
// dictionaries ("fr.txt", "en.txt", ...).
func LoadCensoredWords(path string) (*CensoredData, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open censored words: %w", err)
	}
	if info.IsDir() {
		return LoadDictionaries(os.DirFS(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open censored words: %w", err)
	}
	defer f.Close()
	words, err := readWords(f)
	if err != nil {
		return nil, err
	}
	lang := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &CensoredData{Words: words, Languages: []string{lang}}, nil
}

// LoadDictionaries merges every .txt file at the root of fsys into one
// deduplicated, sorted word list.
func LoadDictionaries(fsys fs.FS) (*CensoredData, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list dictionaries: %w", err)
	}
	data := &CensoredData{}
	unique := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		f, err := fsys.Open(entry.Name())
		if err != nil {
			return nil, err
		}
		words, err := readWords(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		data.Languages = append(data.Languages, strings.TrimSuffix(entry.Name(), ".txt"))
		for _, w := range words {
			unique[w] = struct{}{}
		}
	}
	for w := range unique {
		data.Words = append(data.Words, w)
	}
	slices.Sort(data.Words)
	return data, nil
}

// readWords takes one word per line. Blank lines and # comments are skipped.
// bufio.Scanner copes with both \n and \r\n endings.
func readWords(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read censored words: %w", err)
	}
	return words, nil
}
