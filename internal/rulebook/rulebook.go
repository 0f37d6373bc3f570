// Package rulebook indexes the numbered sections of the game rulebook and
// answers substring queries against them.
package rulebook

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLimit is the number of matches returned when the caller gives none.
const DefaultLimit = 3

var sectionPattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+(.*)$`)

// Entry is one numbered rule section.
type Entry struct {
	Section string `json:"section" yaml:"section"`
	Text    string `json:"text" yaml:"text"`
}

// KnowledgeBase holds rule sections in document order.
type KnowledgeBase struct {
	entries []Entry
	index   map[string]int
}

// New builds a knowledge base from entries. A repeated section number
// replaces the earlier text but keeps its position.
func New(entries []Entry) *KnowledgeBase {
	kb := &KnowledgeBase{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		kb.add(e)
	}
	return kb
}

func (kb *KnowledgeBase) add(e Entry) {
	e.Section = strings.TrimSpace(e.Section)
	e.Text = strings.TrimSpace(e.Text)
	if e.Section == "" {
		return
	}
	if i, ok := kb.index[e.Section]; ok {
		kb.entries[i] = e
		return
	}
	kb.index[e.Section] = len(kb.entries)
	kb.entries = append(kb.entries, e)
}

// ParseText extracts every line of the form "<n[.n...]> <text>".
func ParseText(r io.Reader) (*KnowledgeBase, error) {
	kb := New(nil)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := sectionPattern.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}
		kb.add(Entry{Section: m[1], Text: m[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rulebook: %w", err)
	}
	return kb, nil
}

// ParseStructured decodes a list of {section, text} objects. JSON input is
// accepted as well since it is valid YAML.
func ParseStructured(data []byte) (*KnowledgeBase, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode rulebook: %w", err)
	}
	return New(entries), nil
}

// Load reads a rulebook file. .json, .yaml and .yml files are decoded as
// structured entries; anything else is scanned as plain text.
func Load(path string) (*KnowledgeBase, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rulebook %s: %w", path, err)
		}
		return ParseStructured(data)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rulebook %s: %w", path, err)
	}
	defer f.Close()
	return ParseText(f)
}

// Find returns up to limit sections whose text contains query, ignoring
// case, in document order. limit <= 0 means DefaultLimit.
func (kb *KnowledgeBase) Find(query string, limit int) []Entry {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var matches []Entry
	for _, e := range kb.entries {
		if strings.Contains(strings.ToLower(e.Text), q) {
			matches = append(matches, e)
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches
}

// Get returns a section by number.
func (kb *KnowledgeBase) Get(section string) (Entry, bool) {
	i, ok := kb.index[strings.TrimSpace(section)]
	if !ok {
		return Entry{}, false
	}
	return kb.entries[i], true
}

// Len returns the number of sections.
func (kb *KnowledgeBase) Len() int {
	return len(kb.entries)
}

// Entries returns a copy of every section in document order.
func (kb *KnowledgeBase) Entries() []Entry {
	return append([]Entry(nil), kb.entries...)
}
