package money

import "testing"

func TestParseAndString(t *testing.T) {
	cases := map[string]string{
		"1000.00":  "1000.00",
		"1000":     "1000.00",
		"0.05":     "0.05",
		"-0.05":    "-0.05",
		"1234.5":   "1234.50",
		"0":        "0.00",
		"+10.00":   "10.00",
		"1,000.00": "",
	}
	for in, want := range cases {
		got, err := Parse(in)
		if want == "" {
			if err == nil {
				t.Errorf("Parse(%q) expected error, got %s", in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", in, err)
		}
		if got.String() != want {
			t.Errorf("Parse(%q).String() = %q, want %q", in, got.String(), want)
		}
	}
}

func TestArithmeticExact(t *testing.T) {
	a := MustParse("500.00")
	b := MustParse("300.00")
	if sum := a.Add(b); sum.String() != "800.00" {
		t.Errorf("Add = %s, want 800.00", sum)
	}
	if diff := a.Sub(b); diff.String() != "200.00" {
		t.Errorf("Sub = %s, want 200.00", diff)
	}
}

func TestSumConservation(t *testing.T) {
	payment := MustParse("800.00")
	a := MustParse("500.00")
	b := MustParse("300.00")
	unapplied := Zero
	if got := Sum(a, b).Add(unapplied); !got.Equal(payment) {
		t.Errorf("Sum(a,b)+unapplied = %s, want %s", got, payment)
	}
}

func TestWithinTolerance(t *testing.T) {
	a := MustParse("1000.00")
	b := MustParse("1000.00")
	if !a.WithinTolerance(b, 0) {
		t.Errorf("exact amounts should match with zero tolerance")
	}
	c := MustParse("1000.01")
	if c.WithinTolerance(b, 0) {
		t.Errorf("1000.01 should not match 1000.00 with zero tolerance")
	}
	if !c.WithinTolerance(b, 1) {
		t.Errorf("1000.01 should match 1000.00 within 1%% tolerance")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	a := MustParse("1234.56")
	data, err := a.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON error: %v", err)
	}
	var b Amount
	if err := b.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON error: %v", err)
	}
	if !a.Equal(b) {
		t.Errorf("round trip mismatch: %s != %s", a, b)
	}
}
