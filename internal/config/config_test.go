package config

import "testing"

func TestParseParts(t *testing.T) {
	cases := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"1-3,5", []int{1, 2, 3, 5}, false},
		{"5,1-3,3", []int{1, 2, 3, 5}, false},
		{"3-1", nil, true},
		{"0-2", nil, true},
		{"abc", nil, true},
	}
	for _, c := range cases {
		got, err := ParseParts(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseParts(%q): expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseParts(%q): unexpected error: %v", c.in, err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("ParseParts(%q) = %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("ParseParts(%q) = %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestQualityID(t *testing.T) {
	id, err := QualityID(Quality1080p)
	if err != nil || id != 80 {
		t.Fatalf("QualityID(1080p) = %d, %v; want 80, nil", id, err)
	}
	if _, err := QualityID("bogus"); err == nil {
		t.Fatal("expected error for unrecognized quality")
	}
}
