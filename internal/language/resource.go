// Package language holds the read-only English language resource used by
// the normalizer: a stopword set and a lemma table. The embedded default
// resource is loaded at most once per process and never mutated afterwards.
package language

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
)

//go:embed data/stopwords.txt
var defaultStopwords []byte

//go:embed data/lemmas.txt
var defaultLemmas []byte

// Resource is an immutable stopword set plus lemma table.
type Resource struct {
	stopwords map[string]struct{}
	lemmas    map[string]string
}

var (
	defaultOnce     sync.Once
	defaultResource *Resource
	defaultErr      error
)

// Default returns the process-wide English resource, loading it on first
// use.
func Default() (*Resource, error) {
	defaultOnce.Do(func() {
		defaultResource, defaultErr = Load(bytes.NewReader(defaultStopwords), bytes.NewReader(defaultLemmas))
	})
	return defaultResource, defaultErr
}

// Load builds a Resource from a stopword list (one word per line) and a
// lemma table ("form lemma" per line). Blank lines and lines starting with
// '#' are skipped in both.
func Load(stopwords io.Reader, lemmas io.Reader) (*Resource, error) {
	r := &Resource{
		stopwords: make(map[string]struct{}),
		lemmas:    make(map[string]string),
	}
	err := scanLines(stopwords, func(line string) error {
		r.stopwords[strings.ToLower(line)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading stopwords: %v", apperrors.ErrResourceUnavailable, err)
	}
	err = scanLines(lemmas, func(line string) error {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("malformed lemma entry %q", line)
		}
		r.lemmas[strings.ToLower(fields[0])] = strings.ToLower(fields[1])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading lemmas: %v", apperrors.ErrResourceUnavailable, err)
	}
	if len(r.stopwords) == 0 {
		return nil, fmt.Errorf("%w: stopword list is empty", apperrors.ErrResourceUnavailable)
	}
	return r, nil
}

// LoadFiles reads a Resource from files on disk. An empty path falls back
// to the corresponding embedded default.
func LoadFiles(stopwordsPath, lemmasPath string) (*Resource, error) {
	stop, err := readOrDefault(stopwordsPath, defaultStopwords)
	if err != nil {
		return nil, err
	}
	lem, err := readOrDefault(lemmasPath, defaultLemmas)
	if err != nil {
		return nil, err
	}
	return Load(bytes.NewReader(stop), bytes.NewReader(lem))
}

// IsStopword reports whether word (already lower-cased) is a stopword.
func (r *Resource) IsStopword(word string) bool {
	_, ok := r.stopwords[word]
	return ok
}

// Lemma returns the table lemma for word, if the table has one.
func (r *Resource) Lemma(word string) (string, bool) {
	lemma, ok := r.lemmas[word]
	return lemma, ok
}

// StopWords returns a sorted copy of the stopword set.
func (r *Resource) StopWords() []string {
	words := make([]string, 0, len(r.stopwords))
	for w := range r.stopwords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// StopWordSet returns a copy of the stopword set.
func (r *Resource) StopWordSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.stopwords))
	for w := range r.stopwords {
		set[w] = struct{}{}
	}
	return set
}

func readOrDefault(path string, fallback []byte) ([]byte, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrResourceUnavailable, err)
	}
	return data, nil
}

func scanLines(rd io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
