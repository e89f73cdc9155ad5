package memory

import (
	"sort"
	"strings"
)

// Rank filters and orders records for q.
//
// A record qualifies when it shares a tag with q (if q has tags) and contains
// the query phrase or any query term in its content or key (if q has text).
// Scores: 2 per shared tag, 3 for the phrase in the content, 2 for the phrase
// in the key, 1 per matching term. Ties go to the newer record, then the
// smaller key.
func Rank(records []Record, q Query) []Summary {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	terms := strings.Fields(text)
	qtags := NormalizeTags(q.Tags)

	out := make([]Summary, 0, len(records))
	for _, r := range records {
		score := 0
		if len(qtags) > 0 {
			overlap := tagOverlap(r.Tags, qtags)
			if overlap == 0 {
				continue
			}
			score += 2 * overlap
		}
		if text != "" {
			content := strings.ToLower(r.Content)
			key := strings.ToLower(r.Key)
			matched := false
			if strings.Contains(content, text) {
				score += 3
				matched = true
			}
			if strings.Contains(key, text) {
				score += 2
				matched = true
			}
			for _, term := range terms {
				if strings.Contains(content, term) || strings.Contains(key, term) {
					score++
					matched = true
				}
			}
			if !matched {
				continue
			}
		}
		s := r.summary()
		s.Score = score
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return newerFirst(out[i], out[j])
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func tagOverlap(have, want []string) int {
	n := 0
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				n++
				break
			}
		}
	}
	return n
}

func newerFirst(a, b Summary) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Key < b.Key
}

// listSummaries returns newest-first summaries of records, restricted to tag when non-empty.
func listSummaries(records []Record, tag string) []Summary {
	tag = strings.ToLower(strings.TrimSpace(tag))
	out := make([]Summary, 0, len(records))
	for _, r := range records {
		if tag != "" && tagOverlap(r.Tags, []string{tag}) == 0 {
			continue
		}
		out = append(out, r.summary())
	}
	sort.SliceStable(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	return out
}
