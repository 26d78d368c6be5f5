package types

import "testing"

func TestPoint_TagKeysSorted(t *testing.T) {
	p := &Point{Tags: map[string]string{"zone": "z", "host": "h", "rack": "r"}}

	got := p.TagKeys()
	want := []string{"host", "rack", "zone"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("TagKeys() = %v, want %v", got, want)
		}
	}
}

func TestPoint_FieldKeysSorted(t *testing.T) {
	p := &Point{Fields: map[string]interface{}{"v2": 1.0, "v10": 2.0, "v1": 3.0}}

	got := p.FieldKeys()
	want := []string{"v1", "v10", "v2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FieldKeys() = %v, want %v", got, want)
		}
	}
}
