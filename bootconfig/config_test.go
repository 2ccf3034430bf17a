package bootconfig

import "testing"

func TestParseDefaultsToOneHart(t *testing.T) {
	cfg, err := Parse(nil, "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Harts != 1 {
		t.Fatalf("Harts = %d, want 1", cfg.Harts)
	}
	if cfg.DispatchPolicy != "min_count" {
		t.Fatalf("DispatchPolicy = %q, want min_count", cfg.DispatchPolicy)
	}
}

func TestParseRejectsUnknownDispatchPolicy(t *testing.T) {
	_, err := Parse([]string{"-dispatch-policy=bogus"}, "")
	if err == nil {
		t.Fatal("expected an error for an unknown dispatch policy")
	}
}

func TestParseHartsOverridesDefault(t *testing.T) {
	cfg, err := Parse([]string{"-harts=4"}, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Harts != 4 {
		t.Fatalf("Harts = %d, want 4", cfg.Harts)
	}
}

func TestApplyBoardOnlyFillsUnsetFields(t *testing.T) {
	cfg, err := Parse([]string{"-harts=4"}, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.ApplyBoard(&Board{Harts: 8})
	if cfg.Harts != 4 {
		t.Fatalf("Harts = %d, want 4 (explicit flag must win)", cfg.Harts)
	}

	cfg2, err := Parse(nil, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg2.ApplyBoard(&Board{Harts: 8})
	if cfg2.Harts != 8 {
		t.Fatalf("Harts = %d, want 8 (board value fills unset default)", cfg2.Harts)
	}
}
