// Package match filters items against a query using fuzzy, strict or regex
// matching and produces scored results with highlight offsets.
package match

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	lfuzzy "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/atomicstack/tmux-popup-list/internal/source"
)

// chunkSize bounds the work done between cancellation checks.
const chunkSize = 512

// Result is an item annotated with the outcome of a filter pass.
type Result struct {
	source.Item
	Score       int
	Matches     []int
	FilterLabel string
}

// Query bundles the parameters of a filter pass.
type Query struct {
	Text       string
	Kind       source.Matcher
	IgnoreCase bool
	Sort       bool
}

// Filter returns the items of items matching q. Results are ordered by score
// descending (stable) when q.Sort is set and keep the source order otherwise.
func Filter(q Query, items []source.Item) []Result {
	out, _ := FilterContext(context.Background(), q, items)
	return out
}

// FilterContext behaves like Filter but stops between chunks once ctx is
// cancelled, returning ctx's error.
func FilterContext(ctx context.Context, q Query, items []source.Item) ([]Result, error) {
	if len(items) == 0 {
		return nil, ctx.Err()
	}
	if q.Text == "" {
		out := make([]Result, len(items))
		for i, item := range items {
			out[i] = Result{Item: item, FilterLabel: item.Text()}
		}
		return out, ctx.Err()
	}
	m := newMatcher(q)
	out := make([]Result, 0, len(items))
	for start := 0; start < len(items); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + chunkSize
		if end > len(items) {
			end = len(items)
		}
		out = append(out, m.match(items[start:end])...)
	}
	if q.Sort {
		SortByScore(out)
	}
	return out, nil
}

// Merge combines a previously filtered set with a freshly filtered batch
// without rescoring either side. With sorting enabled both inputs must
// already be sorted.
func Merge(q Query, current, batch []Result) []Result {
	if len(batch) == 0 {
		return current
	}
	out := make([]Result, 0, len(current)+len(batch))
	if !q.Sort || q.Text == "" {
		out = append(out, current...)
		return append(out, batch...)
	}
	i, j := 0, 0
	for i < len(current) && j < len(batch) {
		if batch[j].Score > current[i].Score {
			out = append(out, batch[j])
			j++
			continue
		}
		out = append(out, current[i])
		i++
	}
	out = append(out, current[i:]...)
	return append(out, batch[j:]...)
}

// SortByScore orders results by score descending, keeping ties in order.
func SortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

type matcher interface {
	match(items []source.Item) []Result
}

func newMatcher(q Query) matcher {
	switch q.Kind {
	case source.MatcherStrict:
		return strictMatcher{query: q.Text, ignoreCase: q.IgnoreCase}
	case source.MatcherRegex:
		pattern := q.Text
		if q.IgnoreCase {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return noneMatcher{}
		}
		return regexMatcher{re: re}
	default:
		return fuzzyMatcher{query: q.Text, ignoreCase: q.IgnoreCase}
	}
}

type noneMatcher struct{}

func (noneMatcher) match([]source.Item) []Result { return nil }

type strictMatcher struct {
	query      string
	ignoreCase bool
}

func (m strictMatcher) match(items []source.Item) []Result {
	var out []Result
	for _, item := range items {
		text := item.Text()
		start, end := m.index(text)
		if start < 0 {
			continue
		}
		out = append(out, Result{
			Item:        item,
			Score:       -start,
			Matches:     spanOffsets(text, start, end),
			FilterLabel: text,
		})
	}
	return out
}

// index returns the byte range of the first occurrence of the query in text,
// or -1 when there is none.
func (m strictMatcher) index(text string) (int, int) {
	if !m.ignoreCase {
		idx := strings.Index(text, m.query)
		if idx < 0 {
			return -1, -1
		}
		return idx, idx + len(m.query)
	}
	return indexFold(text, m.query)
}

// indexFold finds needle in text under Unicode case folding. Folded runes
// may differ in encoded length, so offsets are taken from text itself.
func indexFold(text, needle string) (int, int) {
	n := utf8.RuneCountInString(needle)
	if n == 0 {
		return 0, 0
	}
	for start := range text {
		end, count := start, 0
		for count < n && end < len(text) {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			count++
		}
		if count < n {
			break
		}
		if strings.EqualFold(text[start:end], needle) {
			return start, end
		}
	}
	return -1, -1
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) match(items []source.Item) []Result {
	var out []Result
	for _, item := range items {
		text := item.Text()
		loc := m.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		out = append(out, Result{
			Item:        item,
			Score:       -loc[0],
			Matches:     spanOffsets(text, loc[0], loc[1]),
			FilterLabel: text,
		})
	}
	return out
}

type fuzzyMatcher struct {
	query      string
	ignoreCase bool
}

func (m fuzzyMatcher) match(items []source.Item) []Result {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text()
	}
	found := fuzzy.Find(m.query, texts)
	sort.SliceStable(found, func(i, j int) bool { return found[i].Index < found[j].Index })
	out := make([]Result, 0, len(found))
	for _, hit := range found {
		if !m.ignoreCase && !lfuzzy.Match(m.query, hit.Str) {
			continue
		}
		out = append(out, Result{
			Item:        items[hit.Index],
			Score:       hit.Score,
			Matches:     hit.MatchedIndexes,
			FilterLabel: hit.Str,
		})
	}
	return out
}

// spanOffsets lists the byte offsets of the runes starting within
// text[start:end].
func spanOffsets(text string, start, end int) []int {
	if start >= end {
		return nil
	}
	offsets := make([]int, 0, end-start)
	for i := range text[start:end] {
		offsets = append(offsets, start+i)
	}
	return offsets
}

// Contains reports whether the query matches text under the same rules
// Filter uses, without building a result.
func Contains(q Query, text string) bool {
	if q.Text == "" {
		return true
	}
	switch q.Kind {
	case source.MatcherStrict:
		if q.IgnoreCase {
			start, _ := indexFold(text, q.Text)
			return start >= 0
		}
		return strings.Contains(text, q.Text)
	case source.MatcherRegex:
		return len(newMatcher(q).match([]source.Item{{Label: text}})) == 1
	default:
		if q.IgnoreCase {
			return lfuzzy.MatchFold(q.Text, text)
		}
		return lfuzzy.Match(q.Text, text)
	}
}
