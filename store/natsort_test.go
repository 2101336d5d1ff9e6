package store

import (
	"sort"
	"testing"
)

func TestCompareSectionIDsOrdering(t *testing.T) {
	// The canonical ordering chain.
	chain := []string{"1", "1a", "2", "3-1", "10", "10a"}
	for i := 0; i < len(chain)-1; i++ {
		if CompareSectionIDs(chain[i], chain[i+1]) >= 0 {
			t.Errorf("expected %q < %q", chain[i], chain[i+1])
		}
		if CompareSectionIDs(chain[i+1], chain[i]) <= 0 {
			t.Errorf("expected %q > %q", chain[i+1], chain[i])
		}
	}
}

func TestCompareSectionIDsEqual(t *testing.T) {
	for _, id := range []string{"1", "3-9", "14a", "1.2.3"} {
		if CompareSectionIDs(id, id) != 0 {
			t.Errorf("expected %q == %q", id, id)
		}
	}
}

func TestCompareSectionIDsNonNumericLast(t *testing.T) {
	// Non-numeric pieces sort after numeric ones, lexicographically.
	if CompareSectionIDs("99", "a") >= 0 {
		t.Error("expected numeric piece before non-numeric")
	}
	if CompareSectionIDs("a", "b") >= 0 {
		t.Error("expected lexicographic order for non-numeric pieces")
	}
}

func TestCompareSectionIDsTotalOrder(t *testing.T) {
	ids := []string{"10", "2", "1a", "3-1", "1", "10a", "14a", "3-9", "a", "1.2"}
	sort.Slice(ids, func(i, j int) bool { return CompareSectionIDs(ids[i], ids[j]) < 0 })

	want := []string{"1", "1.2", "1a", "2", "3-1", "3-9", "10", "10a", "14a", "a"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("sorted order mismatch at %d: got %v, want %v", i, ids, want)
		}
	}

	// Antisymmetry across the board.
	for _, a := range ids {
		for _, b := range ids {
			if CompareSectionIDs(a, b) != -CompareSectionIDs(b, a) {
				t.Errorf("comparator not antisymmetric for %q, %q", a, b)
			}
		}
	}
}

func TestNormalizeSectionID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"§ 3-9", "3-9"},
		{"§3-9", "3-9"},
		{"3-9", "3-9"},
		{"§ 3-9.", "3-9"},
		{" § 14 a ", "14a"},
		{"1 - 2", "1-2"},
	}
	for _, c := range cases {
		if got := NormalizeSectionID(c.in); got != c.want {
			t.Errorf("NormalizeSectionID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDeepestOwner(t *testing.T) {
	structures := []StructureNode{
		{Address: "/kapittel/1/"},
		{Address: "/kapittel/1/gruppe/a/"},
		{Address: "/kapittel/2/"},
	}
	cases := []struct {
		address string
		want    int
	}{
		{"/kapittel/1/paragraf/1-1/", 0},
		{"/kapittel/1/gruppe/a/paragraf/1-2/", 1},
		{"/kapittel/2/paragraf/2-1/", 2},
		{"/vedlegg/paragraf/9/", -1},
		{"", -1},
	}
	for _, c := range cases {
		if got := DeepestOwner(structures, c.address); got != c.want {
			t.Errorf("DeepestOwner(%q) = %d, want %d", c.address, got, c.want)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		chars, want int
	}{
		{0, 0},
		{3, 0},
		{4, 1},
		{7, 2},
		{350, 100},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.chars); got != c.want {
			t.Errorf("EstimateTokens(%d) = %d, want %d", c.chars, got, c.want)
		}
	}
}
