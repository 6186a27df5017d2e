package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"", 7, 7},
		{"42", 7, 42},
		{"-3", 7, -3},
		{"abc", 7, 7},
		{"4.5", 7, 7},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.in, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d, want %d", tc.in, tc.def, got, tc.want)
		}
	}
}

func TestInt64Default(t *testing.T) {
	cases := []struct {
		in   string
		def  int64
		want int64
	}{
		{"", 5, 5},
		{"1735732800", 5, 1735732800},
		{"1735732800500", 5, 1735732800500}, // millisecond timestamps exceed int32
		{"nope", 5, 5},
	}
	for _, tc := range cases {
		if got := Int64Default(tc.in, tc.def); got != tc.want {
			t.Fatalf("Int64Default(%q, %d) = %d, want %d", tc.in, tc.def, got, tc.want)
		}
	}
}
