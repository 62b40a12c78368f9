// Package domain provides domain models used across the application.
package domain

// RankingEntry is a book's position on a board together with the summary
// fields the list payload carries.
type RankingEntry struct {
	BookID   string   `json:"book_id"`
	Position int      `json:"position"`
	Score    *float64 `json:"score,omitempty"`
	Title    string   `json:"title"`
	Author   string   `json:"author"`
}

// RankingRecord is one parsed ranking board.
type RankingRecord struct {
	Code     string         `json:"code"`
	Title    string         `json:"title"`
	PageKind string         `json:"page_kind"`
	Entries  []RankingEntry `json:"entries"`
}

// BookRecord is one parsed book detail payload. Snapshot counters are already
// normalized; CapturedAt is assigned at persistence time.
type BookRecord struct {
	Book     Book         `json:"book"`
	Snapshot BookSnapshot `json:"snapshot"`
}

// ParsedPage is the parser's output for one fetched payload. A ranking page
// yields Rankings; a detail payload yields a single-element Books.
type ParsedPage struct {
	Rankings []RankingRecord `json:"rankings,omitempty"`
	Books    []BookRecord    `json:"books,omitempty"`
}

// BookIDs returns the distinct book IDs referenced by the page's rankings, in
// first-seen order.
func (p *ParsedPage) BookIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for i := range p.Rankings {
		for j := range p.Rankings[i].Entries {
			id := p.Rankings[i].Entries[j].BookID
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
