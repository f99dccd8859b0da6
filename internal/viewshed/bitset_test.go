package viewshed

import "testing"

func TestBitSetBasics(t *testing.T) {
	b := NewBitSet(200)
	if b.Count() != 0 || b.Len() != 200 {
		t.Fatalf("new set count=%d len=%d", b.Count(), b.Len())
	}
	for _, i := range []int{0, 1, 63, 64, 127, 199} {
		b.Add(i)
	}
	b.Add(63) // idempotent
	if b.Count() != 6 {
		t.Errorf("Count = %d, want 6", b.Count())
	}
	if !b.Contains(64) || b.Contains(65) {
		t.Error("Contains wrong around word boundary")
	}
}

func TestBitSetAndNot(t *testing.T) {
	a := NewBitSet(128)
	c := NewBitSet(128)
	for i := 0; i < 10; i++ {
		a.Add(i)
	}
	for i := 5; i < 15; i++ {
		c.Add(i)
	}
	if got := a.AndNotCount(c); got != 5 {
		t.Errorf("AndNotCount = %d, want 5", got)
	}
	diff := a.AndNot(c)
	if diff.Count() != 5 {
		t.Errorf("AndNot count = %d, want 5", diff.Count())
	}
	for i := 0; i < 5; i++ {
		if !diff.Contains(i) {
			t.Errorf("AndNot missing %d", i)
		}
	}
	if diff.Contains(5) {
		t.Error("AndNot kept removed index")
	}
	if got := a.IntersectCount(c); got != 5 {
		t.Errorf("IntersectCount = %d, want 5", got)
	}
}

func TestBitSetUnionInPlace(t *testing.T) {
	a := NewBitSet(128)
	c := NewBitSet(128)
	a.Add(1)
	c.Add(100)
	a.UnionInPlace(c)
	if !a.Contains(1) || !a.Contains(100) || a.Count() != 2 {
		t.Errorf("union wrong: count=%d", a.Count())
	}
}

func TestBitSetForEachOrder(t *testing.T) {
	b := NewBitSet(256)
	want := []int{3, 64, 65, 130, 255}
	for _, i := range want {
		b.Add(i)
	}
	var got []int
	b.ForEach(func(i int) { got = append(got, i) })
	if len(got) != len(want) {
		t.Fatalf("ForEach visited %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ForEach[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
