package numeric

import "testing"

func TestFloorDiv(t *testing.T) {
	cases := []struct {
		a, b, q, r int
	}{
		{7, 3, 2, 1},
		{-1, 3840, -1, 3839},
		{-3840, 3840, -1, 0},
		{0, 960, 0, 0},
	}
	for _, tc := range cases {
		q, r := FloorDiv(tc.a, tc.b)
		if q != tc.q || r != tc.r {
			t.Fatalf("FloorDiv(%d, %d) = (%d, %d), want (%d, %d)", tc.a, tc.b, q, r, tc.q, tc.r)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(1.5, 0.98, 1.02); got != 1.02 {
		t.Fatalf("Clamp high = %v", got)
	}
	if got := Clamp(-3, 0, 10); got != 0 {
		t.Fatalf("Clamp low = %v", got)
	}
}
