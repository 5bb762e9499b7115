package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// KnowledgeEntry holds the marketing material for one domain tag.
type KnowledgeEntry struct {
	Title       string   `json:"title"`
	CaseStudies []string `json:"caseStudies"`
}

// Knowledge maps an uppercased domain tag to its entry. Loaded once at
// startup and read-only while the worker runs.
type Knowledge map[string]KnowledgeEntry

// Lookup normalizes the tag and returns its entry, if any.
func (k Knowledge) Lookup(tag string) (KnowledgeEntry, bool) {
	entry, ok := k[strings.ToUpper(strings.TrimSpace(tag))]
	return entry, ok
}

// LoadKnowledgeFile reads a JSON knowledge base from disk, normalizing all
// tags to uppercase. A missing file yields an empty knowledge base rather
// than an error so the sender works without case-study material.
func LoadKnowledgeFile(path string) (Knowledge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Knowledge{}, nil
		}
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}

	var raw map[string]KnowledgeEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge file: %w", err)
	}

	kb := make(Knowledge, len(raw))
	for tag, entry := range raw {
		normalized := strings.ToUpper(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		kb[normalized] = entry
	}
	return kb, nil
}
