// Package hierarchy resolves asset-tree structure: subtree expansion for
// chart rollups and forest assembly for the tree endpoints.
package hierarchy

import (
	"sort"

	"multiphase-telemetry-dashboard/api/internal/models"
)

// TreeNode is a hierarchy node with its children attached, as returned by
// the tree endpoints.
type TreeNode struct {
	models.HierarchyNode
	DeviceCount int         `json:"deviceCount"`
	Children    []*TreeNode `json:"children"`
}

// ResolveSubtree returns the ids of rootID and every descendant reachable
// through parent links, walking breadth first. A visited set bounds the walk
// so a corrupted parent chain cannot loop. Returns nil when rootID is not in
// nodes.
func ResolveSubtree(nodes []models.HierarchyNode, rootID int64) []int64 {
	children := make(map[int64][]int64, len(nodes))
	known := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		known[n.NodeID] = true
		if n.ParentID != nil {
			children[*n.ParentID] = append(children[*n.ParentID], n.NodeID)
		}
	}
	if !known[rootID] {
		return nil
	}

	visited := make(map[int64]bool, len(nodes))
	queue := []int64{rootID}
	var out []int64
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		out = append(out, id)
		queue = append(queue, children[id]...)
	}
	return out
}

// ForestStats summarizes an assembled forest: node totals, a per-level
// tally keyed by level name, and the summed direct device count.
type ForestStats struct {
	TotalNodes  int            `json:"totalNodes"`
	ByLevel     map[string]int `json:"byLevel"`
	DeviceCount int            `json:"deviceCount"`
}

// BuildForest assembles the flat node list into root-anchored trees. Nodes
// whose parent is missing from the list are treated as roots so a partial
// query still renders, and duplicate rows for the same node id are attached
// once. deviceCounts carries per-node direct device counts and may be nil.
// Siblings sort by level order then name.
func BuildForest(nodes []models.HierarchyNode, deviceCounts map[int64]int) ([]*TreeNode, ForestStats) {
	byID := make(map[int64]*TreeNode, len(nodes))
	for _, n := range nodes {
		if _, seen := byID[n.NodeID]; seen {
			continue
		}
		byID[n.NodeID] = &TreeNode{HierarchyNode: n, DeviceCount: deviceCounts[n.NodeID]}
	}

	stats := ForestStats{ByLevel: make(map[string]int)}
	var roots []*TreeNode
	attached := make(map[int64]bool, len(byID))
	for _, n := range nodes {
		if attached[n.NodeID] {
			continue
		}
		attached[n.NodeID] = true
		t := byID[n.NodeID]
		stats.TotalNodes++
		stats.ByLevel[n.LevelName]++
		stats.DeviceCount += t.DeviceCount
		if n.ParentID == nil {
			roots = append(roots, t)
			continue
		}
		parent, ok := byID[*n.ParentID]
		if !ok || parent == t {
			roots = append(roots, t)
			continue
		}
		parent.Children = append(parent.Children, t)
	}

	var sortLevel func(ts []*TreeNode)
	sortLevel = func(ts []*TreeNode) {
		sort.Slice(ts, func(i, j int) bool {
			if ts[i].LevelOrder != ts[j].LevelOrder {
				return ts[i].LevelOrder < ts[j].LevelOrder
			}
			return ts[i].Name < ts[j].Name
		})
		for _, t := range ts {
			sortLevel(t.Children)
		}
	}
	sortLevel(roots)
	return roots, stats
}

// SubtreeDeviceCount sums direct device counts over a resolved subtree.
func SubtreeDeviceCount(ids []int64, deviceCounts map[int64]int) int {
	total := 0
	for _, id := range ids {
		total += deviceCounts[id]
	}
	return total
}
