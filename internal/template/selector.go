package template

import (
	"math/rand"
	"strings"
	"unicode"

	"github.com/haiminhvu/mailflow/internal/domain"
)

// DefaultTargetCount is how many case studies a rendered email carries.
const DefaultTargetCount = 4

// Selection is the outcome of picking case studies for one recipient.
type Selection struct {
	CaseStudies []string
	Title       string
}

// Select picks up to targetCount case studies for the given comma- or
// whitespace-separated domain tags. The title comes from the first listed
// tag's knowledge entry. Randomness is injected so callers can fix the seed.
func Select(rng *rand.Rand, domainTagsCSV string, kb domain.Knowledge, targetCount int) Selection {
	tags := parseTags(domainTagsCSV)
	if len(tags) == 0 || targetCount <= 0 {
		return Selection{}
	}

	var title string
	if entry, ok := kb.Lookup(tags[0]); ok {
		title = entry.Title
	}

	if len(tags) == 1 {
		entry, ok := kb.Lookup(tags[0])
		if !ok {
			return Selection{Title: title}
		}
		return Selection{
			CaseStudies: selectSingle(rng, entry.CaseStudies, targetCount),
			Title:       title,
		}
	}

	return Selection{
		CaseStudies: selectMulti(rng, tags, kb, targetCount),
		Title:       title,
	}
}

func parseTags(csv string) []string {
	fields := strings.FieldsFunc(csv, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		if tag := strings.ToUpper(strings.TrimSpace(f)); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// selectSingle shuffles the pool and takes up to target items. A pool
// smaller than target is padded by repeated re-shuffled cycles, so a
// non-empty pool always yields exactly target items.
func selectSingle(rng *rand.Rand, pool []string, target int) []string {
	if len(pool) == 0 {
		return nil
	}

	shuffled := shuffledCopy(rng, pool)
	if len(shuffled) >= target {
		return shuffled[:target]
	}

	out := shuffled
	for len(out) < target {
		cycle := shuffledCopy(rng, pool)
		need := target - len(out)
		if need > len(cycle) {
			need = len(cycle)
		}
		out = append(out, cycle[:need]...)
	}
	return out
}

// selectMulti guarantees coverage: one random item from each listed domain
// first (first-listed domains win when target is smaller), then shuffled
// leftovers, then the leftovers cycled in order until target is reached.
func selectMulti(rng *rand.Rand, tags []string, kb domain.Knowledge, target int) []string {
	out := make([]string, 0, target)
	picked := make(map[string]map[int]bool, len(tags))

	for _, tag := range tags {
		if len(out) >= target {
			break
		}
		entry, ok := kb.Lookup(tag)
		if !ok || len(entry.CaseStudies) == 0 {
			continue
		}
		idx := rng.Intn(len(entry.CaseStudies))
		out = append(out, entry.CaseStudies[idx])
		if picked[tag] == nil {
			picked[tag] = make(map[int]bool)
		}
		picked[tag][idx] = true
	}

	var leftover []string
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		entry, ok := kb.Lookup(tag)
		if !ok {
			continue
		}
		for i, cs := range entry.CaseStudies {
			if !picked[tag][i] {
				leftover = append(leftover, cs)
			}
		}
	}

	for _, cs := range shuffledCopy(rng, leftover) {
		if len(out) >= target {
			return out
		}
		out = append(out, cs)
	}

	// Everything was used once and we are still short: pad by cycling
	// over what we have.
	cycle := leftover
	if len(cycle) == 0 {
		cycle = out
	}
	if len(cycle) == 0 {
		return out
	}
	for i := 0; len(out) < target; i++ {
		out = append(out, cycle[i%len(cycle)])
	}
	return out
}

func shuffledCopy(rng *rand.Rand, src []string) []string {
	out := append([]string(nil), src...)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
