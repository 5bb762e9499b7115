package template

import (
	"math/rand"
	"testing"

	"github.com/haiminhvu/mailflow/internal/domain"
)

func testKnowledge() domain.Knowledge {
	return domain.Knowledge{
		"EC":    {Title: "EC向けご提案", CaseStudies: []string{"A", "B", "C", "D", "E"}},
		"IOT":   {Title: "IoT向けご提案", CaseStudies: []string{"F", "G"}},
		"SAAS":  {Title: "SaaS向けご提案", CaseStudies: []string{"H"}},
		"EMPTY": {Title: "空ドメイン"},
	}
}

func TestSelectParsesTags(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name      string
		tags      string
		wantTitle string
		wantCount int
	}{
		{name: "empty csv", tags: "", wantTitle: "", wantCount: 0},
		{name: "only separators", tags: " , ,, ", wantTitle: "", wantCount: 0},
		{name: "lowercase tag", tags: "ec", wantTitle: "EC向けご提案", wantCount: 4},
		{name: "unknown tag", tags: "FINTECH", wantTitle: "", wantCount: 0},
		{name: "title from first tag", tags: "iot, ec", wantTitle: "IoT向けご提案", wantCount: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Select(rng, tt.tags, testKnowledge(), DefaultTargetCount)
			if sel.Title != tt.wantTitle {
				t.Fatalf("Select() title = %q, want %q", sel.Title, tt.wantTitle)
			}
			if len(sel.CaseStudies) != tt.wantCount {
				t.Fatalf("Select() count = %d, want %d", len(sel.CaseStudies), tt.wantCount)
			}
		})
	}
}

func TestSelectSingleDomainDistinct(t *testing.T) {
	t.Parallel()

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		sel := Select(rng, "EC", testKnowledge(), DefaultTargetCount)

		if len(sel.CaseStudies) != DefaultTargetCount {
			t.Fatalf("seed %d: got %d case studies, want %d", seed, len(sel.CaseStudies), DefaultTargetCount)
		}

		seen := make(map[string]bool)
		for _, cs := range sel.CaseStudies {
			if seen[cs] {
				t.Fatalf("seed %d: duplicate case study %q in %v", seed, cs, sel.CaseStudies)
			}
			seen[cs] = true
		}
	}
}

func TestSelectSingleDomainPadsShortPool(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	sel := Select(rng, "IOT", testKnowledge(), DefaultTargetCount)

	if len(sel.CaseStudies) != DefaultTargetCount {
		t.Fatalf("got %d case studies, want %d from a pool of 2", len(sel.CaseStudies), DefaultTargetCount)
	}
	for _, cs := range sel.CaseStudies {
		if cs != "F" && cs != "G" {
			t.Fatalf("unexpected case study %q", cs)
		}
	}
}

func TestSelectMultiDomainCoverage(t *testing.T) {
	t.Parallel()

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		sel := Select(rng, "EC, IOT, SAAS", testKnowledge(), DefaultTargetCount)

		if len(sel.CaseStudies) != DefaultTargetCount {
			t.Fatalf("seed %d: got %d case studies, want %d", seed, len(sel.CaseStudies), DefaultTargetCount)
		}

		pools := map[string][]string{
			"EC":   {"A", "B", "C", "D", "E"},
			"IOT":  {"F", "G"},
			"SAAS": {"H"},
		}
		for tag, pool := range pools {
			if !containsAny(sel.CaseStudies, pool) {
				t.Fatalf("seed %d: no case study from %s in %v", seed, tag, sel.CaseStudies)
			}
		}
	}
}

func TestSelectMultiDomainFirstListedWins(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(3))
	sel := Select(rng, "SAAS, IOT, EC", testKnowledge(), 2)

	if len(sel.CaseStudies) != 2 {
		t.Fatalf("got %d case studies, want 2", len(sel.CaseStudies))
	}
	if sel.CaseStudies[0] != "H" {
		t.Fatalf("first pick = %q, want the first-listed domain's item H", sel.CaseStudies[0])
	}
	if sel.CaseStudies[1] != "F" && sel.CaseStudies[1] != "G" {
		t.Fatalf("second pick = %q, want one of the second-listed domain's items", sel.CaseStudies[1])
	}
}

func TestSelectMultiDomainIgnoresUnknownAndEmpty(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	sel := Select(rng, "FINTECH, EMPTY, IOT", testKnowledge(), DefaultTargetCount)

	if len(sel.CaseStudies) != DefaultTargetCount {
		t.Fatalf("got %d case studies, want %d", len(sel.CaseStudies), DefaultTargetCount)
	}
	for _, cs := range sel.CaseStudies {
		if cs != "F" && cs != "G" {
			t.Fatalf("unexpected case study %q", cs)
		}
	}
}

func containsAny(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n {
				return true
			}
		}
	}
	return false
}
