package hierarchy

import (
	"sort"
	"testing"

	"multiphase-telemetry-dashboard/api/internal/models"
)

func ptr(v int64) *int64 { return &v }

func chain() []models.HierarchyNode {
	// region 1 -> field 2 -> platform 3 -> wells 4,5; sibling field 6 under 1
	return []models.HierarchyNode{
		{NodeID: 1, Name: "North Sea", LevelName: "Region", LevelOrder: 1},
		{NodeID: 2, Name: "Brent", LevelName: "Field", LevelOrder: 2, ParentID: ptr(1)},
		{NodeID: 3, Name: "Bravo", LevelName: "Platform", LevelOrder: 3, ParentID: ptr(2)},
		{NodeID: 4, Name: "B-01", LevelName: "Well", LevelOrder: 4, ParentID: ptr(3), CanAttachDevice: true},
		{NodeID: 5, Name: "B-02", LevelName: "Well", LevelOrder: 4, ParentID: ptr(3), CanAttachDevice: true},
		{NodeID: 6, Name: "Ninian", LevelName: "Field", LevelOrder: 2, ParentID: ptr(1)},
	}
}

func TestResolveSubtreeFull(t *testing.T) {
	ids := ResolveSubtree(chain(), 1)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	want := []int64{1, 2, 3, 4, 5, 6}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestResolveSubtreeExcludesSiblings(t *testing.T) {
	ids := ResolveSubtree(chain(), 2)
	for _, id := range ids {
		if id == 6 {
			t.Fatalf("sibling branch leaked into subtree: %v", ids)
		}
	}
	if len(ids) != 4 {
		t.Fatalf("subtree of node 2 = %v, want 4 ids", ids)
	}
}

func TestResolveSubtreeUnknownRoot(t *testing.T) {
	if ids := ResolveSubtree(chain(), 99); ids != nil {
		t.Fatalf("unknown root returned %v", ids)
	}
}

func TestResolveSubtreeCycleGuard(t *testing.T) {
	nodes := []models.HierarchyNode{
		{NodeID: 1, ParentID: ptr(2)},
		{NodeID: 2, ParentID: ptr(1)},
	}
	ids := ResolveSubtree(nodes, 1)
	if len(ids) != 2 {
		t.Fatalf("cycle walk returned %v", ids)
	}
}

func TestBuildForest(t *testing.T) {
	counts := map[int64]int{4: 2, 5: 1}
	roots, stats := BuildForest(chain(), counts)
	if len(roots) != 1 {
		t.Fatalf("got %d roots, want 1", len(roots))
	}
	region := roots[0]
	if region.Name != "North Sea" || len(region.Children) != 2 {
		t.Fatalf("root = %s with %d children", region.Name, len(region.Children))
	}
	// Siblings sorted by name within a level.
	if region.Children[0].Name != "Brent" || region.Children[1].Name != "Ninian" {
		t.Fatalf("field order = %s, %s", region.Children[0].Name, region.Children[1].Name)
	}
	platform := region.Children[0].Children[0]
	if len(platform.Children) != 2 {
		t.Fatalf("platform has %d wells", len(platform.Children))
	}
	if platform.Children[0].DeviceCount != 2 {
		t.Fatalf("well B-01 deviceCount = %d", platform.Children[0].DeviceCount)
	}
	if stats.TotalNodes != 6 || stats.DeviceCount != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.ByLevel["Field"] != 2 || stats.ByLevel["Well"] != 2 || stats.ByLevel["Region"] != 1 {
		t.Fatalf("level tally = %v", stats.ByLevel)
	}
}

func TestBuildForestOrphanBecomesRoot(t *testing.T) {
	nodes := []models.HierarchyNode{
		{NodeID: 10, Name: "Dangling", LevelOrder: 3, ParentID: ptr(999)},
	}
	roots, _ := BuildForest(nodes, nil)
	if len(roots) != 1 || roots[0].NodeID != 10 {
		t.Fatalf("orphan handling = %+v", roots)
	}
}

func TestBuildForestIgnoresDuplicateRows(t *testing.T) {
	nodes := append(chain(), models.HierarchyNode{NodeID: 4, Name: "B-01", LevelName: "Well", LevelOrder: 4, ParentID: ptr(3), CanAttachDevice: true})
	roots, stats := BuildForest(nodes, map[int64]int{4: 2})
	if stats.TotalNodes != 6 || stats.DeviceCount != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	platform := roots[0].Children[0].Children[0]
	if len(platform.Children) != 2 {
		t.Fatalf("duplicate row attached twice: %d wells", len(platform.Children))
	}
}

func TestSubtreeDeviceCount(t *testing.T) {
	counts := map[int64]int{4: 2, 5: 1}
	ids := ResolveSubtree(chain(), 3)
	if got := SubtreeDeviceCount(ids, counts); got != 3 {
		t.Fatalf("device count = %d, want 3", got)
	}
}
