package authx

import "testing"

func TestParseRolesMergesClaimSources(t *testing.T) {
	claims := map[string]any{
		"roles":  []any{"admin", "operator"},
		"groups": []any{"operator", "viewer"},
		"scp":    "read write",
	}
	roles := parseRoles(claims)
	if len(roles) != 5 {
		t.Fatalf("expected 5 deduplicated roles, got %v", roles)
	}
	seen := map[string]bool{}
	for _, role := range roles {
		if seen[role] {
			t.Fatalf("duplicate role %q in %v", role, roles)
		}
		seen[role] = true
	}
	if !seen["viewer"] {
		t.Fatalf("expected groups claim to contribute viewer, got %v", roles)
	}
}

func TestStringClaim(t *testing.T) {
	claims := map[string]any{
		"email": "  Ops@Example.COM ",
		"name":  nil,
	}
	if got := stringClaim(claims, "email"); got != "Ops@Example.COM" {
		t.Fatalf("expected trimmed email, got %q", got)
	}
	if got := stringClaim(claims, "name"); got != "" {
		t.Fatalf("expected empty string for nil claim, got %q", got)
	}
	if got := stringClaim(claims, "missing"); got != "" {
		t.Fatalf("expected empty string for absent claim, got %q", got)
	}
}

func TestNewJWTVerifierValidation(t *testing.T) {
	if _, err := NewJWTVerifier("", "aud", "", 60, 0); err == nil {
		t.Fatalf("expected error for missing issuer")
	}
	if _, err := NewJWTVerifier("https://issuer.example", "", "", 60, 0); err == nil {
		t.Fatalf("expected error for missing audience")
	}
}
