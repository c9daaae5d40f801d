package conversation

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/huandu/go-clone"
	"github.com/rs/zerolog/log"
)

// Tree stores the branching message history of a single chat.
//
// MessagesMap is the only store of messages. Parent links live on each
// message as ParentID, and each message lists its replies in Children in
// creation order. RootMessageIDs lists the messages without a parent, and
// CurrentBranchPath is the root-to-node path that is displayed and sent to
// the model.
//
// Operations never modify the receiver. Every mutating operation returns a
// new tree, or the receiver itself along with an error when nothing was done.
type Tree struct {
	MessagesMap       map[NodeID]*Message `json:"messagesMap"`
	RootMessageIDs    []NodeID            `json:"rootMessageIds"`
	CurrentBranchPath []NodeID            `json:"currentBranchPath"`
}

func NewTree() *Tree {
	return &Tree{
		MessagesMap:       map[NodeID]*Message{},
		RootMessageIDs:    []NodeID{},
		CurrentBranchPath: []NodeID{},
	}
}

func (t *Tree) Clone() *Tree {
	if t == nil {
		return NewTree()
	}
	ret := clone.Clone(t).(*Tree)
	ret.normalize()
	return ret
}

// normalize replaces nil collections with empty ones so that serialized
// trees always carry arrays and objects.
func (t *Tree) normalize() {
	if t.MessagesMap == nil {
		t.MessagesMap = map[NodeID]*Message{}
	}
	if t.RootMessageIDs == nil {
		t.RootMessageIDs = []NodeID{}
	}
	if t.CurrentBranchPath == nil {
		t.CurrentBranchPath = []NodeID{}
	}
	for id, msg := range t.MessagesMap {
		if msg == nil {
			delete(t.MessagesMap, id)
			continue
		}
		if msg.Children == nil {
			msg.Children = []NodeID{}
		}
		if msg.Content == nil {
			msg.Content = Content{}
		}
	}
}

func (t *Tree) Len() int {
	return len(t.MessagesMap)
}

func (t *Tree) Message(id NodeID) (*Message, bool) {
	msg, ok := t.MessagesMap[id]
	return msg, ok
}

// Leaf returns the last ID of the current branch path, or the empty ID.
func (t *Tree) Leaf() NodeID {
	if len(t.CurrentBranchPath) == 0 {
		return ""
	}
	return t.CurrentBranchPath[len(t.CurrentBranchPath)-1]
}

// LeafMessage returns the message at the end of the current branch path.
func (t *Tree) LeafMessage() (*Message, bool) {
	leaf := t.Leaf()
	if leaf.IsZero() {
		return nil, false
	}
	return t.Message(leaf)
}

// BranchMessages resolves the current branch path into messages.
//
// IDs that don't resolve are skipped with a warning. The returned messages
// belong to the tree and must not be modified.
func (t *Tree) BranchMessages() []*Message {
	ret := make([]*Message, 0, len(t.CurrentBranchPath))
	for _, id := range t.CurrentBranchPath {
		msg, ok := t.MessagesMap[id]
		if !ok {
			log.Warn().Str("id", id.String()).Msg("branch path references unknown message, skipping")
			continue
		}
		ret = append(ret, msg)
	}
	return ret
}

// Children returns the direct replies of a message, in creation order.
func (t *Tree) Children(id NodeID) []NodeID {
	msg, ok := t.MessagesMap[id]
	if !ok {
		return nil
	}
	return slices.Clone(msg.Children)
}

// Siblings returns the IDs sharing the parent of id, including id itself.
// For roots this is the list of roots.
func (t *Tree) Siblings(id NodeID) []NodeID {
	msg, ok := t.MessagesMap[id]
	if !ok {
		return nil
	}
	if msg.IsRoot() {
		return slices.Clone(t.RootMessageIDs)
	}
	return t.Children(msg.ParentID)
}

// IsFork reports whether the message has more than one reply.
func (t *Tree) IsFork(id NodeID) bool {
	msg, ok := t.MessagesMap[id]
	return ok && len(msg.Children) > 1
}

func (t *Tree) IsInBranch(id NodeID) bool {
	return slices.Contains(t.CurrentBranchPath, id)
}

// Descendants returns every message below id, breadth first, not including id.
func (t *Tree) Descendants(id NodeID) []NodeID {
	msg, ok := t.MessagesMap[id]
	if !ok {
		return nil
	}

	ret := []NodeID{}
	seen := map[NodeID]bool{id: true}
	queue := slices.Clone(msg.Children)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true

		child, ok := t.MessagesMap[cur]
		if !ok {
			continue
		}
		ret = append(ret, cur)
		queue = append(queue, child.Children...)
	}

	return ret
}

// PathTo returns the IDs from the root down to id by following parent links.
func (t *Tree) PathTo(id NodeID) ([]NodeID, error) {
	if _, ok := t.MessagesMap[id]; !ok {
		return nil, notFound(id)
	}

	path := []NodeID{}
	seen := map[NodeID]bool{}
	for cur := id; !cur.IsZero(); {
		if seen[cur] {
			log.Warn().Str("id", cur.String()).Msg("cycle in parent links, stopping ancestor walk")
			break
		}
		msg, ok := t.MessagesMap[cur]
		if !ok {
			log.Warn().Str("id", cur.String()).Msg("missing ancestor, stopping ancestor walk")
			break
		}
		seen[cur] = true
		path = append(path, cur)
		cur = msg.ParentID
	}
	slices.Reverse(path)

	return path, nil
}

// Validate checks the structural invariants of the tree and returns an
// *InvariantError listing every violation found.
func (t *Tree) Validate() error {
	var problems []string
	ids := slices.Sorted(maps.Keys(t.MessagesMap))

	for _, id := range ids {
		msg := t.MessagesMap[id]
		if msg.ID != id {
			problems = append(problems, fmt.Sprintf("message %q is stored under key %q", msg.ID, id))
		}
		for _, childID := range msg.Children {
			child, ok := t.MessagesMap[childID]
			if !ok {
				problems = append(problems, fmt.Sprintf("message %q lists unknown child %q", id, childID))
				continue
			}
			if child.ParentID != id {
				problems = append(problems, fmt.Sprintf("child %q of %q has parent %q", childID, id, child.ParentID))
			}
		}
		if msg.IsRoot() {
			if !slices.Contains(t.RootMessageIDs, id) {
				problems = append(problems, fmt.Sprintf("root message %q missing from root list", id))
			}
			continue
		}
		parent, ok := t.MessagesMap[msg.ParentID]
		if !ok {
			problems = append(problems, fmt.Sprintf("message %q has unknown parent %q", id, msg.ParentID))
			continue
		}
		if !slices.Contains(parent.Children, id) {
			problems = append(problems, fmt.Sprintf("message %q missing from children of %q", id, msg.ParentID))
		}
	}

	for _, id := range t.RootMessageIDs {
		msg, ok := t.MessagesMap[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("root list references unknown message %q", id))
			continue
		}
		if !msg.IsRoot() {
			problems = append(problems, fmt.Sprintf("root list contains non-root message %q", id))
		}
	}

	for i, id := range t.CurrentBranchPath {
		msg, ok := t.MessagesMap[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("branch path references unknown message %q", id))
			continue
		}
		if i == 0 {
			if !msg.IsRoot() {
				problems = append(problems, fmt.Sprintf("branch path starts at non-root message %q", id))
			}
			continue
		}
		if msg.ParentID != t.CurrentBranchPath[i-1] {
			problems = append(problems, fmt.Sprintf("branch path step %q does not follow %q", id, t.CurrentBranchPath[i-1]))
		}
	}

	if len(problems) > 0 {
		return &InvariantError{Problems: problems}
	}
	return nil
}

type InvariantError struct {
	Problems []string
}

func (e *InvariantError) Error() string {
	return "invalid conversation tree: " + strings.Join(e.Problems, "; ")
}

func removeIDs(ids []NodeID, removed map[NodeID]bool) []NodeID {
	ret := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		if !removed[id] {
			ret = append(ret, id)
		}
	}
	return ret
}
