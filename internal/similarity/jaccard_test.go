package similarity

import "testing"

func TestJaccard_Properties(t *testing.T) {
	a := "breaking news about the economy today"
	b := "breaking news about the stock market today"

	if got := Jaccard(a, a); got != 1 {
		t.Fatalf("jaccard(a, a) = %v, want 1", got)
	}
	if got, want := Jaccard(a, b), Jaccard(b, a); got != want {
		t.Fatalf("jaccard not symmetric: %v vs %v", got, want)
	}
	if got := Jaccard(a, ""); got != 0 {
		t.Fatalf("jaccard(a, empty) = %v, want 0", got)
	}
	if got := Jaccard("", ""); got != 0 {
		t.Fatalf("jaccard(empty, empty) = %v, want 0", got)
	}
}

func TestJaccard_PartialOverlap(t *testing.T) {
	a := "stocks rally after earnings beat expectations today"
	b := "stocks rally after earnings miss expectations today"

	got := Jaccard(a, b)
	if got <= 0 || got >= 1 {
		t.Fatalf("jaccard(a, b) = %v, want strictly between 0 and 1 for partial overlap", got)
	}
}

func TestIsNearDuplicate(t *testing.T) {
	identical := "regional elections set for next month across the country"
	if !IsNearDuplicate(identical, identical, NearDupeThreshold) {
		t.Fatalf("identical titles should be near-duplicates")
	}

	unrelated := "local bakery wins national pastry competition award"
	if IsNearDuplicate(identical, unrelated, NearDupeThreshold) {
		t.Fatalf("unrelated titles should not be near-duplicates")
	}
}
