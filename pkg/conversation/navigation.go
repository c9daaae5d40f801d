package conversation

import (
	"slices"

	"github.com/rs/zerolog/log"
)

// SwitchToBranch makes the branch through id the current one.
//
// The new path is the ancestors of id followed by id, then extended
// downwards as long as the last message has exactly one reply. It stops at a
// leaf or at the first fork, since there is no way to tell which reply the
// user wants.
func (t *Tree) SwitchToBranch(id NodeID) (*Tree, error) {
	path, err := t.PathTo(id)
	if err != nil {
		return t, err
	}

	seen := make(map[NodeID]bool, len(path))
	for _, p := range path {
		seen[p] = true
	}
	for cur := t.MessagesMap[id]; len(cur.Children) == 1; {
		next := cur.Children[0]
		nextMsg, ok := t.MessagesMap[next]
		if !ok || seen[next] {
			break
		}
		seen[next] = true
		path = append(path, next)
		cur = nextMsg
	}

	ret := t.Clone()
	ret.CurrentBranchPath = path

	log.Debug().
		Str("id", id.String()).
		Int("length", len(path)).
		Msg("switched branch")

	return ret, nil
}

// BranchFrom truncates the current branch path so that it ends at id. The
// next appended message becomes a new reply to id. id must be on the current
// branch path.
func (t *Tree) BranchFrom(id NodeID) (*Tree, error) {
	idx := slices.Index(t.CurrentBranchPath, id)
	if idx < 0 {
		return t, &LookupError{ID: id, Reason: ErrNotInBranch}
	}

	ret := t.Clone()
	ret.CurrentBranchPath = slices.Clone(ret.CurrentBranchPath[:idx+1])

	return ret, nil
}
