package ir

import (
	"testing"
)

func TestShapeString(t *testing.T) {
	tests := []struct {
		shape Shape
		want  string
	}{
		{Static(), "[]"},
		{Static(2, 3), "[2,3]"},
		{FromDims(StaticDim(1), DynamicDim(), NamedDim("batch")), "[1,?,batch]"},
		{Dynamic(), "?"},
	}
	for _, tt := range tests {
		if got := tt.shape.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestShapeRank(t *testing.T) {
	if got := Static(2, 3, 4).Rank(); got != 3 {
		t.Errorf("Rank() = %d, want 3", got)
	}
	if got := Static().Rank(); got != 0 {
		t.Errorf("scalar Rank() = %d, want 0", got)
	}
	if got := Dynamic().Rank(); got != -1 {
		t.Errorf("unranked Rank() = %d, want -1", got)
	}
}

func TestShapeNumElements(t *testing.T) {
	n, ok := Static(3, 2).NumElements()
	if !ok || n != 6 {
		t.Errorf("NumElements() = %d, %v, want 6, true", n, ok)
	}

	n, ok = Static().NumElements()
	if !ok || n != 1 {
		t.Errorf("scalar NumElements() = %d, %v, want 1, true", n, ok)
	}

	if _, ok := FromDims(StaticDim(2), DynamicDim()).NumElements(); ok {
		t.Error("NumElements() on a dynamic shape should report false")
	}
}

func TestShapeEqual(t *testing.T) {
	if !Static(2, 3).Equal(Static(2, 3)) {
		t.Error("identical static shapes should be equal")
	}
	if Static(2, 3).Equal(Static(3, 2)) {
		t.Error("different static shapes should not be equal")
	}
	if Static(2).Equal(FromDims(DynamicDim())) {
		t.Error("static and dynamic dims should not be equal")
	}
	if !Dynamic().Equal(Dynamic()) {
		t.Error("unranked shapes should be equal")
	}
	if FromDims(NamedDim("n")).Equal(FromDims(NamedDim("m"))) {
		t.Error("dims with different symbolic names should not be equal")
	}
}

func TestShapeMerge(t *testing.T) {
	merged, err := FromDims(StaticDim(2), DynamicDim()).Merge(FromDims(DynamicDim(), StaticDim(5)))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !merged.Equal(Static(2, 5)) {
		t.Errorf("Merge() = %s, want [2,5]", merged)
	}

	merged, err = Dynamic().Merge(Static(4))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !merged.Equal(Static(4)) {
		t.Errorf("Merge() with unranked = %s, want [4]", merged)
	}

	if _, err := Static(2).Merge(Static(3)); err == nil {
		t.Error("Merge of conflicting sizes should fail")
	}
	if _, err := Static(2).Merge(Static(2, 2)); err == nil {
		t.Error("Merge of conflicting ranks should fail")
	}
}

func TestBroadcast(t *testing.T) {
	tests := []struct {
		name string
		a, b Shape
		want Shape
	}{
		{"equal", Static(3, 5), Static(3, 5), Static(3, 5)},
		{"left ones", Static(3, 1), Static(3, 5), Static(3, 5)},
		{"rank extension", Static(5), Static(3, 5), Static(3, 5)},
		{"scalar", Static(), Static(2, 3), Static(2, 3)},
		{"dynamic vs known", FromDims(DynamicDim(), StaticDim(5)), Static(3, 5), Static(3, 5)},
		{"one vs dynamic", Static(1, 5), FromDims(NamedDim("n"), StaticDim(5)), FromDims(NamedDim("n"), StaticDim(5))},
		{"both dynamic", FromDims(DynamicDim()), FromDims(DynamicDim()), FromDims(DynamicDim())},
		{"unranked", Dynamic(), Static(2), Dynamic()},
	}
	for _, tt := range tests {
		got, err := Broadcast(tt.a, tt.b)
		if err != nil {
			t.Errorf("%s: Broadcast failed: %v", tt.name, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("%s: Broadcast(%s, %s) = %s, want %s", tt.name, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBroadcastIncompatible(t *testing.T) {
	if _, err := Broadcast(Static(3, 4), Static(3, 5)); err == nil {
		t.Error("Broadcast of incompatible static dims should fail")
	}
}
