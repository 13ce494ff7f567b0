package expr

import (
	"math"
	"sort"
	"testing"
)

func eval(t *testing.T, src string, values map[string]float64) float64 {
	t.Helper()
	e, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return e.Eval(values)
}

func TestArithmetic(t *testing.T) {
	cases := []struct {
		src  string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"-5 + 2", -3},
		{"2 * -3", -6},
		{"1.5 * 4", 6},
	}
	for _, c := range cases {
		if got := eval(t, c.src, nil); got != c.want {
			t.Fatalf("%q = %v, want %v", c.src, got, c.want)
		}
	}
}

func TestTagLookup(t *testing.T) {
	values := map[string]float64{"GFR": 300, "OFR": 100, "WFR": 100}
	got := eval(t, "GFR / (GFR + OFR + WFR) * 100", values)
	if math.Abs(got-60) > 1e-9 {
		t.Fatalf("gvf expression = %v, want 60", got)
	}
}

func TestMissingTagIsZero(t *testing.T) {
	if got := eval(t, "Pressure + 5", map[string]float64{}); got != 5 {
		t.Fatalf("missing tag eval = %v, want 5", got)
	}
}

func TestDivisionByZero(t *testing.T) {
	if got := eval(t, "WFR / (OFR + WFR)", map[string]float64{}); got != 0 {
		t.Fatalf("division by zero = %v, want 0", got)
	}
	if got := eval(t, "10 / 0", nil); got != 0 {
		t.Fatalf("10/0 = %v, want 0", got)
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"1 +", "(1 + 2", "GFR $", "* 3", ""} {
		if _, err := Parse(src); err == nil {
			t.Fatalf("Parse(%q) should fail", src)
		}
	}
}

func TestTagNamesNeedWordBoundaries(t *testing.T) {
	// GFR2 is its own tag, not GFR followed by 2.
	values := map[string]float64{"GFR": 100, "GFR2": 7}
	if got := eval(t, "GFR2", values); got != 7 {
		t.Fatalf("GFR2 = %v, want 7", got)
	}
}

func TestTags(t *testing.T) {
	e, err := Parse("GFR / (GFR + OFR) + PressureAvg")
	if err != nil {
		t.Fatal(err)
	}
	tags := Tags(e)
	sort.Strings(tags)
	want := []string{"GFR", "OFR", "PressureAvg"}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tags = %v, want %v", tags, want)
		}
	}
}

func TestValidate(t *testing.T) {
	known := map[string]bool{"GFR": true, "OFR": true}
	if err := Validate("GFR + OFR", known); err != nil {
		t.Fatalf("valid expression rejected: %v", err)
	}
	if err := Validate("GFR + Unknown", known); err == nil {
		t.Fatal("unknown tag accepted")
	}
	if err := Validate("GFR +", known); err == nil {
		t.Fatal("syntax error accepted")
	}
}

func TestEvalString(t *testing.T) {
	if got := EvalString("GFR * 2", map[string]float64{"GFR": 3}); got != 6 {
		t.Fatalf("EvalString = %v", got)
	}
	if got := EvalString("", nil); got != 0 {
		t.Fatalf("empty expression = %v, want 0", got)
	}
	if got := EvalString("1 +", nil); got != 0 {
		t.Fatalf("broken expression = %v, want 0", got)
	}
}
