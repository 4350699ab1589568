package dedup

import (
	"sort"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
)

// Deduped is a CandidateArticle annotated with the durable trace of the
// engine's work: its content fingerprint and, when the article belongs to a
// duplicate cluster, the cluster id.
type Deduped struct {
	domain.CandidateArticle
	Fingerprint      string `json:"fingerprint"`
	DuplicateGroupID string `json:"duplicate_group_id,omitempty"`
}

// Canonical reports whether this article is its group's canonical member.
// Articles outside any group are trivially canonical.
func (d Deduped) Canonical() bool {
	return d.DuplicateGroupID == "" || d.DuplicateGroupID == d.ID
}

// Group is a cluster of articles judged to cover the same story. It always
// has at least two members; the group id is the canonical member's id.
type Group struct {
	ID        string   `json:"id"`
	Canonical string   `json:"canonical"`
	Members   []string `json:"members"`
}

// Grouper clusters articles into duplicate groups: exact grouping by content
// fingerprint first, then near-duplicate grouping by token overlap within a
// bounded candidate window, unioned transitively.
type Grouper struct {
	threshold float64
}

// DefaultThreshold is the token-overlap score at or above which two articles
// are considered the same story.
const DefaultThreshold = 0.8

// NewGrouper builds a grouper with the given similarity threshold; values
// outside (0, 1] fall back to DefaultThreshold.
func NewGrouper(threshold float64) *Grouper {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Grouper{threshold: threshold}
}

// Group clusters the batch and returns every article annotated with its
// fingerprint and group id, plus the materialized groups. Output is
// deterministic for any input ordering: articles are processed in id order
// and canonical selection follows the published-at/source-id/article-id
// tie-break.
func (g *Grouper) Group(articles []domain.CandidateArticle) ([]Deduped, []Group) {
	arts := uniqueSortedByID(articles)
	n := len(arts)
	if n == 0 {
		return nil, nil
	}

	fps := make([]string, n)
	for i, a := range arts {
		fps[i] = Fingerprint(a)
	}

	uf := newUnionFind(n)

	// Step 1: exact grouping. Equal fingerprints are duplicates outright.
	byFP := make(map[string]int, n)
	reps := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if first, ok := byFP[fps[i]]; ok {
			uf.union(first, i)
			continue
		}
		byFP[fps[i]] = i
		reps = append(reps, i)
	}

	// Step 2: near-duplicate grouping over one representative per
	// fingerprint, bounded to same-UTC-day candidates sharing at least one
	// significant token.
	g.unionNearDuplicates(arts, reps, uf)

	return g.materialize(arts, fps, uf)
}

// unionNearDuplicates scores representative pairs within the candidate
// window and unions those at or above the threshold. An inverted token index
// per day bucket keeps the comparison count near-linear: only pairs sharing
// a significant token are ever scored.
func (g *Grouper) unionNearDuplicates(arts []domain.CandidateArticle, reps []int, uf *unionFind) {
	byDay := make(map[string][]int)
	for _, i := range reps {
		day := arts[i].PublishedAt.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], i)
	}

	tokenSets := make(map[int]map[string]struct{}, len(reps))
	tokensOf := func(i int) map[string]struct{} {
		if ts, ok := tokenSets[i]; ok {
			return ts
		}
		ts := significantTokens(arts[i])
		tokenSets[i] = ts
		return ts
	}

	for _, bucket := range byDay {
		if len(bucket) < 2 {
			continue
		}

		postings := make(map[string][]int)
		for _, i := range bucket {
			for tok := range tokensOf(i) {
				postings[tok] = append(postings[tok], i)
			}
		}

		scored := make(map[[2]int]struct{})
		for _, idxs := range postings {
			if len(idxs) < 2 {
				continue
			}
			for x := 0; x < len(idxs); x++ {
				for y := x + 1; y < len(idxs); y++ {
					i, j := idxs[x], idxs[y]
					if i > j {
						i, j = j, i
					}
					pair := [2]int{i, j}
					if _, done := scored[pair]; done {
						continue
					}
					scored[pair] = struct{}{}
					if jaccard(tokensOf(i), tokensOf(j)) >= g.threshold {
						uf.union(i, j)
					}
				}
			}
		}
	}
}

// materialize turns union-find components into groups with canonical members
// and annotates every article. Singleton components never become groups.
func (g *Grouper) materialize(arts []domain.CandidateArticle, fps []string, uf *unionFind) ([]Deduped, []Group) {
	components := make(map[int][]int)
	for i := range arts {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	groupIDByIndex := make(map[int]string)
	groups := make([]Group, 0)
	for _, members := range components {
		if len(members) < 2 {
			continue
		}

		canonical := members[0]
		for _, i := range members[1:] {
			if lessCanonical(arts[i], arts[canonical]) {
				canonical = i
			}
		}

		grp := Group{
			ID:        arts[canonical].ID,
			Canonical: arts[canonical].ID,
			Members:   make([]string, 0, len(members)),
		}
		for _, i := range members {
			grp.Members = append(grp.Members, arts[i].ID)
			groupIDByIndex[i] = grp.ID
		}
		sort.Strings(grp.Members)
		groups = append(groups, grp)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].ID < groups[b].ID })

	out := make([]Deduped, len(arts))
	for i, a := range arts {
		out[i] = Deduped{
			CandidateArticle: a,
			Fingerprint:      fps[i],
			DuplicateGroupID: groupIDByIndex[i],
		}
	}
	return out, groups
}

// lessCanonical orders articles by canonical preference: earliest
// published_at, then lexicographically smallest source id, then smallest
// article id so the choice is total.
func lessCanonical(a, b domain.CandidateArticle) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.Before(b.PublishedAt)
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	return a.ID < b.ID
}

// uniqueSortedByID copies the batch, drops repeated article ids, and sorts by
// id so grouping never depends on arrival order.
func uniqueSortedByID(articles []domain.CandidateArticle) []domain.CandidateArticle {
	seen := make(map[string]struct{}, len(articles))
	out := make([]domain.CandidateArticle, 0, len(articles))
	for _, a := range articles {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// unionFind is a disjoint-set forest with path compression and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}
