package routing

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRoutes(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.json")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write routes file: %v", err)
	}
	return path
}

func TestResolverResolveCluster(t *testing.T) {
	path := writeRoutes(t, `{
  "default_cluster": "cluster-a",
  "clusters": {
    "cluster-a": {"brokers": ["localhost:9092"]},
    "cluster-b": {"brokers": ["localhost:9093"]}
  },
  "routes": [
    {"tenant_id": "tenant-1", "region": "north-sea", "cluster": "cluster-b"}
  ]
}`)
	resolver, err := Load(path)
	if err != nil {
		t.Fatalf("load routes: %v", err)
	}
	if got, ok := resolver.ResolveCluster("tenant-1", "north-sea"); !ok || got != "cluster-b" {
		t.Fatalf("expected cluster-b, got %q (ok=%v)", got, ok)
	}
	if got, ok := resolver.ResolveCluster("tenant-1", "NORTH-SEA"); !ok || got != "cluster-b" {
		t.Fatalf("route match should be case insensitive, got %q (ok=%v)", got, ok)
	}
	if got, ok := resolver.ResolveCluster("tenant-2", "gulf"); !ok || got != "cluster-a" {
		t.Fatalf("expected default cluster-a, got %q (ok=%v)", got, ok)
	}
}

func TestResolverResolveTopic(t *testing.T) {
	path := writeRoutes(t, `{
  "default_cluster": "cluster-a",
  "default_topic": "telemetry.readings",
  "topic_map": {"device.status": "device.status"},
  "clusters": {
    "cluster-a": {"brokers": ["localhost:9092"]}
  }
}`)
	resolver, err := Load(path)
	if err != nil {
		t.Fatalf("load routes: %v", err)
	}
	if got := resolver.ResolveTopic("device.status"); got != "device.status" {
		t.Fatalf("topic map lookup = %q", got)
	}
	if got := resolver.ResolveTopic("reading.received"); got != "telemetry.readings" {
		t.Fatalf("default topic = %q", got)
	}
}

func TestLoadRejectsUnknownCluster(t *testing.T) {
	path := writeRoutes(t, `{
  "clusters": {"cluster-a": {"brokers": ["localhost:9092"]}},
  "routes": [{"tenant_id": "t", "region": "r", "cluster": "missing"}]
}`)
	if _, err := Load(path); err == nil {
		t.Fatal("route to unknown cluster should fail to load")
	}
}

func TestLoadRejectsDuplicateRoute(t *testing.T) {
	path := writeRoutes(t, `{
  "clusters": {"cluster-a": {"brokers": ["localhost:9092"]}},
  "routes": [
    {"tenant_id": "t", "region": "r", "cluster": "cluster-a"},
    {"tenant_id": "T", "region": "R", "cluster": "cluster-a"}
  ]
}`)
	if _, err := Load(path); err == nil {
		t.Fatal("duplicate route should fail to load")
	}
}
