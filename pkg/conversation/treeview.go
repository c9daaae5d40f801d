package conversation

import (
	"slices"
)

type TreeNode struct {
	ID                NodeID    `json:"id"`
	Role              Role      `json:"role"`
	Preview           string    `json:"preview"`
	Timestamp         Timestamp `json:"timestamp"`
	Depth             int       `json:"depth"`
	IsError           bool      `json:"isError,omitempty"`
	IsInCurrentBranch bool      `json:"isInCurrentBranch"`
	IsCurrentNode     bool      `json:"isCurrentNode"`
	HasBranches       bool      `json:"hasBranches"`
	ChildCount        int       `json:"childCount"`
}

type TreeEdge struct {
	ID     string `json:"id"`
	Source NodeID `json:"source"`
	Target NodeID `json:"target"`
}

// TreeView is a flattened picture of a tree meant for drawing it.
type TreeView struct {
	Nodes []TreeNode `json:"nodes"`
	Edges []TreeEdge `json:"edges"`
}

// BuildTreeView lists every message reachable from the roots in depth-first
// order, children in creation order, along with one edge per parent link.
func BuildTreeView(t *Tree) *TreeView {
	ret := &TreeView{
		Nodes: []TreeNode{},
		Edges: []TreeEdge{},
	}

	leaf := t.Leaf()
	inBranch := make(map[NodeID]bool, len(t.CurrentBranchPath))
	for _, id := range t.CurrentBranchPath {
		inBranch[id] = true
	}

	type item struct {
		id    NodeID
		depth int
	}
	stack := make([]item, 0, len(t.RootMessageIDs))
	for _, id := range slices.Backward(t.RootMessageIDs) {
		stack = append(stack, item{id: id})
	}
	visited := map[NodeID]bool{}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		msg, ok := t.MessagesMap[cur.id]
		if !ok {
			continue
		}

		ret.Nodes = append(ret.Nodes, TreeNode{
			ID:                msg.ID,
			Role:              msg.Role,
			Preview:           Preview(msg.Content, TreePreviewLength),
			Timestamp:         msg.Timestamp,
			Depth:             cur.depth,
			IsError:           msg.IsError,
			IsInCurrentBranch: inBranch[msg.ID],
			IsCurrentNode:     msg.ID == leaf,
			HasBranches:       len(msg.Children) > 1,
			ChildCount:        len(msg.Children),
		})
		if !msg.IsRoot() {
			ret.Edges = append(ret.Edges, TreeEdge{
				ID:     msg.ParentID.String() + "-" + msg.ID.String(),
				Source: msg.ParentID,
				Target: msg.ID,
			})
		}

		for _, child := range slices.Backward(msg.Children) {
			stack = append(stack, item{id: child, depth: cur.depth + 1})
		}
	}

	return ret
}
