package conversation

import (
	"slices"
	"strings"
	"time"

	"github.com/huandu/go-clone"
	"github.com/rs/zerolog/log"
)

// AppendMessage adds msg at the end of the current branch.
//
// msg.ParentID must be the current leaf (or empty when the branch is empty,
// making msg a new root) and msg.ID must be unused. User messages must carry
// non-blank content.
func (t *Tree) AppendMessage(msg *Message) (*Tree, error) {
	if msg == nil {
		return t, &ValidationError{Field: "message", Reason: ErrEmptyContent}
	}
	if msg.ID.IsZero() {
		return t, &ValidationError{Field: "id", Reason: ErrMissingID}
	}
	if _, exists := t.MessagesMap[msg.ID]; exists {
		return t, &ValidationError{Field: "id", Reason: ErrDuplicateMessage}
	}
	if msg.Role == RoleUser && msg.Content.IsBlank() {
		return t, &ValidationError{Field: "content", Reason: ErrEmptyContent}
	}
	if msg.ParentID != t.Leaf() {
		return t, &ValidationError{Field: "parentId", Reason: ErrParentMismatch}
	}
	if !msg.IsRoot() {
		if _, ok := t.MessagesMap[msg.ParentID]; !ok {
			return t, notFound(msg.ParentID)
		}
	}

	ret := t.Clone()
	m := clone.Clone(msg).(*Message)
	m.Children = []NodeID{}
	if m.Content == nil {
		m.Content = Content{}
	}

	ret.MessagesMap[m.ID] = m
	if m.IsRoot() {
		ret.RootMessageIDs = append(ret.RootMessageIDs, m.ID)
	} else {
		parent := ret.MessagesMap[m.ParentID]
		parent.Children = append(parent.Children, m.ID)
	}
	ret.CurrentBranchPath = append(ret.CurrentBranchPath, m.ID)

	log.Debug().
		Str("id", m.ID.String()).
		Str("parent", m.ParentID.String()).
		Str("role", string(m.Role)).
		Msg("appended message")

	return ret, nil
}

// EditMessage replaces the content of a message with text and drops its
// whole subtree. See EditMessageAt.
func (t *Tree) EditMessage(id NodeID, text string) (*Tree, error) {
	return t.EditMessageAt(id, text, time.Now())
}

// EditMessageAt rewrites message id with the trimmed text, marks it as edited
// at the given time (other fields such as IsError are kept) and removes every descendant from the tree. Alternate
// branches below id are discarded. The current branch path loses all removed
// IDs, which leaves it ending at id when id was on it.
func (t *Tree) EditMessageAt(id NodeID, text string, at time.Time) (*Tree, error) {
	if _, ok := t.MessagesMap[id]; !ok {
		return t, notFound(id)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return t, &ValidationError{Field: "content", Reason: ErrEmptyContent}
	}

	ret := t.Clone()
	removed := map[NodeID]bool{}
	for _, d := range ret.Descendants(id) {
		removed[d] = true
		delete(ret.MessagesMap, d)
	}

	msg := ret.MessagesMap[id]
	msg.Content = NewTextContent(trimmed)
	msg.Edited = true
	editedAt := NewTimestamp(at)
	msg.EditedAt = &editedAt
	msg.Children = []NodeID{}

	ret.RootMessageIDs = removeIDs(ret.RootMessageIDs, removed)
	ret.CurrentBranchPath = removeIDs(ret.CurrentBranchPath, removed)

	log.Debug().
		Str("id", id.String()).
		Int("removed", len(removed)).
		Msg("edited message")

	return ret, nil
}

// DeleteMessage removes a message together with its whole subtree.
func (t *Tree) DeleteMessage(id NodeID) (*Tree, error) {
	msg, ok := t.MessagesMap[id]
	if !ok {
		return t, notFound(id)
	}

	ret := t.Clone()
	removed := map[NodeID]bool{id: true}
	for _, d := range ret.Descendants(id) {
		removed[d] = true
	}
	for d := range removed {
		delete(ret.MessagesMap, d)
	}

	if msg.IsRoot() {
		ret.RootMessageIDs = slices.DeleteFunc(ret.RootMessageIDs, func(r NodeID) bool { return r == id })
	} else if parent, ok := ret.MessagesMap[msg.ParentID]; ok {
		parent.Children = slices.DeleteFunc(parent.Children, func(c NodeID) bool { return c == id })
	}
	ret.RootMessageIDs = removeIDs(ret.RootMessageIDs, removed)
	ret.CurrentBranchPath = removeIDs(ret.CurrentBranchPath, removed)

	log.Debug().
		Str("id", id.String()).
		Int("removed", len(removed)).
		Msg("deleted message")

	return ret, nil
}
