package main

import (
	"slices"
	"testing"
)

func TestExtractTablesFromMigration(t *testing.T) {
	tables, err := extractTables("../../migrations/0001_pricing.sql")
	if err != nil {
		t.Fatalf("extractTables: %v", err)
	}
	for _, want := range []string{"pricing_locations", "pricing_rate_cards", "pricing_distance_tiers", "pricing_zone_fees", "pricing_surge_rules"} {
		if !slices.Contains(tables, want) {
			t.Errorf("missing %s in %v", want, tables)
		}
	}
}

func TestStatusResult(t *testing.T) {
	if got := statusResult(201, 0, 200, 201); got.Status != StatusPass {
		t.Errorf("201 = %s, want PASS", got.Status)
	}
	if got := statusResult(500, 0, 200); got.Status != StatusFail {
		t.Errorf("500 = %s, want FAIL", got.Status)
	}
}
