package tenantx

import (
	"context"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	ctx := WithTenant(context.Background(), TenantContext{ID: "t1", Slug: "acme", Role: "viewer"})
	got, ok := FromContext(ctx)
	if !ok || got.ID != "t1" || got.Slug != "acme" {
		t.Fatalf("unexpected tenant: %#v ok=%v", got, ok)
	}
	if got.IsAdmin() {
		t.Fatalf("viewer must not be admin")
	}
}

func TestIsAdminCaseInsensitive(t *testing.T) {
	if !(TenantContext{Role: " Admin "}).IsAdmin() {
		t.Fatalf("expected admin role to match")
	}
}

func TestTenantIDFromEmptyContext(t *testing.T) {
	if got := TenantIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
