package money

import "testing"

func TestParseMinor(t *testing.T) {
	cases := []struct {
		raw      string
		currency string
		want     int64
	}{
		{"9.99", "USD", 999},
		{"39.99", "usd", 3999},
		{"69.9", "USD", 6990},
		{"100", "EGP", 10000},
		{"1500", "JPY", 1500},
		{" 9.99 ", "USD", 999},
		{"0.00", "USD", 0},
		{"9.990", "USD", 999},
	}
	for _, c := range cases {
		got, err := ParseMinor(c.raw, c.currency)
		if err != nil {
			t.Fatalf("ParseMinor(%q): %v", c.raw, err)
		}
		if got != c.want {
			t.Fatalf("ParseMinor(%q) = %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestParseMinorRejects(t *testing.T) {
	for _, raw := range []string{
		"", "abc", "-1.00", "9.999", "+9.99",
		"999/100", "9.99e0", "1E2", "0x10", "0b11",
		".99", "9.", "1_000", "9,99", "NaN", "Inf",
		"92233720368547758.08",
	} {
		if _, err := ParseMinor(raw, "USD"); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	if got := FormatMinor(999, "USD"); got != "9.99" {
		t.Fatalf("got %q", got)
	}
	if got := FormatMinor(6990, "USD"); got != "69.90" {
		t.Fatalf("got %q", got)
	}
	if got := FormatMinor(1500, "JPY"); got != "1500" {
		t.Fatalf("got %q", got)
	}
	if got := FormatMinor(5, "EGP"); got != "0.05" {
		t.Fatalf("got %q", got)
	}
}
