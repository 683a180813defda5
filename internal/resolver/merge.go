package resolver

import (
	"sort"

	"github.com/lepinkainen/shelf/internal/bookmeta"
)

type candidate struct {
	result bookmeta.SearchResult
	// index is the position within the provider's own answer.
	index int
}

// Merge combines per-provider result lists into one list. Every candidate is
// normalized and audio editions are dropped. Candidates describing the same
// book are grouped; the group's winner is the member with the most populated
// fields (then provider priority, then provider-local position), and its
// blank fields are filled from the other members in that order. Groups are
// ordered by their best-ranked member.
//
// Candidates with disjoint ISBN sets never share a group. A candidate without
// ISBNs joins the best-ranked edition it matches by title and author.
func Merge(lists ...[]bookmeta.SearchResult) []bookmeta.SearchResult {
	var candidates []candidate
	for _, list := range lists {
		normalized := make([]bookmeta.SearchResult, 0, len(list))
		for _, r := range list {
			bookmeta.ApplySeries(&r)
			r.Finalize()
			normalized = append(normalized, r)
		}
		for i, r := range bookmeta.FilterAudiobooks(normalized) {
			candidates = append(candidates, candidate{result: r, index: i})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return rankLess(candidates[i], candidates[j])
	})

	groups := groupCandidates(candidates)

	var order []int
	members := make(map[int][]int)
	for i := range candidates {
		root := groups.find(i)
		if _, ok := members[root]; !ok {
			order = append(order, root)
		}
		members[root] = append(members[root], i)
	}

	merged := make([]bookmeta.SearchResult, 0, len(order))
	for _, root := range order {
		merged = append(merged, mergeGroup(candidates, members[root]))
	}
	return merged
}

// groupCandidates unions editions sharing an ISBN and ISBN-less candidates
// with equal title and author. Each ISBN-less group is then attached to the
// best-ranked edition it matches, so it can never bridge two editions.
func groupCandidates(candidates []candidate) *unionFind {
	groups := newUnionFind(len(candidates))
	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i].result, candidates[j].result
			if hasISBN(a) == hasISBN(b) && sameBook(a, b) {
				groups.union(i, j)
			}
		}
	}

	attached := make(map[int]bool)
	for i := range candidates {
		if hasISBN(candidates[i].result) {
			continue
		}
		root := groups.find(i)
		if attached[root] {
			continue
		}
		attached[root] = true
		for j := range candidates {
			if hasISBN(candidates[j].result) && sameBook(candidates[i].result, candidates[j].result) {
				groups.union(root, j)
				attached[groups.find(root)] = true
				break
			}
		}
	}
	return groups
}

func hasISBN(r bookmeta.SearchResult) bool {
	return len(r.AllISBNs) > 0
}

// mergeGroup picks the winner of a group whose member indices are in rank
// order and fills its blanks from the rest.
func mergeGroup(candidates []candidate, group []int) bookmeta.SearchResult {
	winner := group[0]
	best := candidates[winner].result.PopulatedFields()
	for _, idx := range group[1:] {
		if n := candidates[idx].result.PopulatedFields(); n > best {
			winner, best = idx, n
		}
	}

	result := candidates[winner].result
	result.AllISBNs = append([]string(nil), result.AllISBNs...)
	for _, idx := range group {
		if idx != winner {
			result.FillFrom(candidates[idx].result)
		}
	}
	result.Finalize()
	return result
}

func rankLess(a, b candidate) bool {
	if pa, pb := a.result.Source.Priority(), b.result.Source.Priority(); pa != pb {
		return pa < pb
	}
	return a.index < b.index
}

// sameBook reports whether two candidates describe the same book: their ISBN
// sets intersect or, when either has no ISBN, their folded title and author
// are equal.
func sameBook(a, b bookmeta.SearchResult) bool {
	if len(a.AllISBNs) > 0 && len(b.AllISBNs) > 0 {
		for _, x := range a.AllISBNs {
			for _, y := range b.AllISBNs {
				if x == y {
					return true
				}
			}
		}
		return false
	}
	if a.Title == bookmeta.UnknownTitle || b.Title == bookmeta.UnknownTitle {
		return false
	}
	return bookmeta.MatchKey(a.Title) == bookmeta.MatchKey(b.Title) &&
		bookmeta.MatchKey(a.Author) == bookmeta.MatchKey(b.Author)
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union keeps the lower index as root so roots stay the best-ranked member.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	switch {
	case ra == rb:
	case ra < rb:
		u.parent[rb] = ra
	default:
		u.parent[ra] = rb
	}
}
