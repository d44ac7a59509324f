package domain

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10", "10"},
		{" 90.25 ", "90.25"},
		{"1,250.5", "1250.5"},
		{"12,345,678", "12345678"},
		{"-1,000", "-1000"},
		{"0", "0"},
		{"-3.1", "-3.1"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) unexpected error: %v", tt.in, err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "1.2.3", "1,5", "12,50", "1,2,3", ",100", "1000,000", "1,000.5,0"} {
		if _, err := ParseAmount(in); err == nil {
			t.Errorf("ParseAmount(%q) expected error", in)
		}
	}
}

func TestProperty_AmountRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		units := rapid.Int64Range(-1_000_000_000, 1_000_000_000).Draw(t, "units")
		exp := rapid.Int32Range(-6, 0).Draw(t, "exp")
		d := decimal.New(units, exp)

		got, err := ParseAmount(d.String())
		if err != nil {
			t.Fatalf("ParseAmount(%q) returned error: %v", d.String(), err)
		}
		if !got.Equal(d) {
			t.Fatalf("round-trip failed: %s → %q → %s", d, d.String(), got)
		}
	})
}

func TestProperty_GroupedAmountEqualsPlain(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Int64Range(1000, 1_000_000_000_000).Draw(t, "n")
		plain := decimal.NewFromInt(n).String()

		var b strings.Builder
		for i, r := range plain {
			if i > 0 && (len(plain)-i)%3 == 0 {
				b.WriteByte(',')
			}
			b.WriteRune(r)
		}

		got, err := ParseAmount(b.String())
		if err != nil {
			t.Fatalf("ParseAmount(%q) returned error: %v", b.String(), err)
		}
		if !got.Equal(decimal.NewFromInt(n)) {
			t.Fatalf("ParseAmount(%q) = %s, want %d", b.String(), got, n)
		}
	})
}
