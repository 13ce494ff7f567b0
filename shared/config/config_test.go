package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"x", " ", "y"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestAsBool(t *testing.T) {
	if b, ok := asBool("Yes"); !ok || !b {
		t.Fatalf("expected yes to parse true")
	}
	if b, ok := asBool("0"); !ok || b {
		t.Fatalf("expected 0 to parse false")
	}
	if _, ok := asBool("maybe"); ok {
		t.Fatalf("expected maybe to fail")
	}
}

func TestApplyConfigMapChartCache(t *testing.T) {
	cfg := Config{ChartCacheTTLSec: 30}
	var problems []Problem
	applyConfigMap(&cfg, map[string]any{"chart_cache_ttl_seconds": float64(120)}, &problems)
	if cfg.ChartCacheTTLSec != 120 {
		t.Fatalf("expected 120, got %d", cfg.ChartCacheTTLSec)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
}
