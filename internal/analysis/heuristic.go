package analysis

import (
	"context"
	"regexp"
	"sort"

	"storyreel/internal/domain/story"
)

const (
	scanLimit       = 10000
	summaryLimit    = 200
	heuristicTop    = 5
	heuristicScene  = "Scene 1: A key moment from the story."
	heuristicRole   = "Character"
	minCandidateLen = 3
)

var capitalised = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

// Words that start sentences or address people far more often than they
// name anyone.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"The", "A", "An", "It", "He", "She", "They", "But", "And", "When", "Then", "Suddenly",
		"Meanwhile", "However", "Although", "Okay", "So", "If", "This", "That", "There", "Here",
		"What", "Why", "How", "Who", "Where", "Beneath", "Above", "Behind", "Inside", "Outside",
		"Near", "Far", "Just", "Only", "Very", "Really", "Now", "Later", "Soon", "Yesterday",
		"Today", "Tomorrow", "Yes", "No", "Please", "Thank", "Thanks", "Hello", "Hi", "Goodbye",
		"Mr", "Mrs", "Ms", "Dr", "Prof", "Captain", "Sergeant", "General", "King", "Queen",
		"Prince", "Princess", "Lord", "Lady", "Sir", "Madam", "One", "Two", "Three", "First",
		"Second", "Third", "Next", "Last", "Finally", "Also", "Besides", "Moreover", "Furthermore",
		"In", "On", "At", "To", "For", "With", "By", "From", "Of", "About", "As", "Like",
	} {
		stopWords[w] = struct{}{}
	}
}

// HeuristicAnalyzer guesses characters from capitalised word frequency. It
// needs no network access and never fails.
type HeuristicAnalyzer struct{}

func (HeuristicAnalyzer) Analyze(ctx context.Context, text string) (*story.SemanticMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type candidate struct {
		name  string
		count int
	}
	seen := make(map[string]*candidate)
	var order []*candidate

	for _, w := range capitalised.FindAllString(truncate(text, scanLimit), -1) {
		if _, stop := stopWords[w]; stop || len(w) < minCandidateLen {
			continue
		}
		c, ok := seen[w]
		if !ok {
			c = &candidate{name: w}
			seen[w] = c
			order = append(order, c)
		}
		c.count++
	}

	// stable, so ties keep first-appearance order
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].count > order[j].count
	})
	if len(order) > heuristicTop {
		order = order[:heuristicTop]
	}

	entities := make([]story.Entity, 0, len(order))
	for _, c := range order {
		entities = append(entities, story.Entity{Name: c.name, Role: heuristicRole})
	}

	return &story.SemanticMap{
		Summary:  truncate(text, summaryLimit) + "...",
		Entities: entities,
		Keywords: []string{},
		Scenes:   []string{heuristicScene},
	}, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
