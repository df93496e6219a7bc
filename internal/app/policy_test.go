package app

import "testing"

func TestPolicyFor(t *testing.T) {
	cases := []struct {
		name string
		want BackpressureAction
		err  bool
	}{
		{"", KickConnection, false},
		{"kick", KickConnection, false},
		{"drop", DropFrame, false},
		{"mark", NoAction, true},
	}
	for _, tc := range cases {
		p, err := PolicyFor(tc.name)
		if tc.err {
			if err == nil {
				t.Fatalf("%q: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.name, err)
		}
		if got := p.OnBackPressure(Record{}); got != tc.want {
			t.Fatalf("%q: action=%v, want %v", tc.name, got, tc.want)
		}
	}
}
