package conversation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func appendMsg(t *testing.T, tree *Tree, id NodeID, role Role, text string) *Tree {
	t.Helper()
	msg := NewMessage(role, NewTextContent(text), WithID(id), WithParentID(tree.Leaf()), WithTime(testTime))
	ret, err := tree.AppendMessage(msg)
	require.NoError(t, err)
	require.NoError(t, ret.Validate())
	return ret
}

func branchFrom(t *testing.T, tree *Tree, id NodeID) *Tree {
	t.Helper()
	ret, err := tree.BranchFrom(id)
	require.NoError(t, err)
	return ret
}

// forkTree builds A -> [B -> D, C] with the current branch ending at C.
func forkTree(t *testing.T) *Tree {
	tree := NewTree()
	tree = appendMsg(t, tree, "A", RoleUser, "question")
	tree = appendMsg(t, tree, "B", RoleAssistant, "first answer")
	tree = appendMsg(t, tree, "D", RoleUser, "follow up")
	tree = branchFrom(t, tree, "A")
	tree = appendMsg(t, tree, "C", RoleAssistant, "second answer")
	return tree
}

func ids(msgs []*Message) []NodeID {
	ret := make([]NodeID, 0, len(msgs))
	for _, m := range msgs {
		ret = append(ret, m.ID)
	}
	return ret
}

func TestAppendMessage(t *testing.T) {
	tree := NewTree()
	tree = appendMsg(t, tree, "1", RoleUser, "hi")
	tree = appendMsg(t, tree, "2", RoleAssistant, "hello")

	assert.Equal(t, []NodeID{"1"}, tree.RootMessageIDs)
	assert.Equal(t, []NodeID{"1", "2"}, tree.CurrentBranchPath)
	assert.Equal(t, []NodeID{"2"}, tree.MessagesMap["1"].Children)
	assert.Equal(t, NodeID("1"), tree.MessagesMap["2"].ParentID)

	branch := tree.BranchMessages()
	require.Len(t, branch, 2)
	assert.Equal(t, NodeID("2"), branch[len(branch)-1].ID)
}

func TestAppendMessageDoesNotModifyReceiver(t *testing.T) {
	tree := appendMsg(t, NewTree(), "1", RoleUser, "hi")
	before := tree.Clone()

	next := appendMsg(t, tree, "2", RoleAssistant, "hello")

	assert.Equal(t, before, tree)
	assert.NotEqual(t, before, next)
}

func TestAppendMessageValidation(t *testing.T) {
	tree := appendMsg(t, NewTree(), "1", RoleUser, "hi")

	tests := []struct {
		name   string
		msg    *Message
		reason error
	}{
		{"empty user content", NewUserMessage("   \n", WithID("2"), WithParentID("1")), ErrEmptyContent},
		{"missing id", NewUserMessage("x", WithID(""), WithParentID("1")), ErrMissingID},
		{"duplicate id", NewUserMessage("x", WithID("1"), WithParentID("1")), ErrDuplicateMessage},
		{"wrong parent", NewUserMessage("x", WithID("2")), ErrParentMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret, err := tree.AppendMessage(tt.msg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, tt.reason)
			assert.Same(t, tree, ret)
		})
	}
}

func TestAppendEmptyAssistantReply(t *testing.T) {
	tree := appendMsg(t, NewTree(), "1", RoleUser, "hi")
	msg := NewMessage(RoleAssistant, Content{}, WithID("2"), WithParentID("1"))

	ret, err := tree.AppendMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, NodeID("2"), ret.Leaf())
}

func TestAppendKeepsChildrenEmpty(t *testing.T) {
	msg := NewUserMessage("hi", WithID("1"))
	msg.Children = []NodeID{"ghost"}

	tree, err := NewTree().AppendMessage(msg)
	require.NoError(t, err)
	assert.Empty(t, tree.MessagesMap["1"].Children)
	assert.Equal(t, []NodeID{"ghost"}, msg.Children)
	require.NoError(t, tree.Validate())
}

func TestSwitchToBranchAtFork(t *testing.T) {
	tree := NewTree()
	tree = appendMsg(t, tree, "R", RoleUser, "root")
	tree = appendMsg(t, tree, "A", RoleAssistant, "answer")
	tree = appendMsg(t, tree, "B1", RoleUser, "one")
	tree = appendMsg(t, tree, "B1a", RoleAssistant, "one answer")
	tree = branchFrom(t, tree, "A")
	tree = appendMsg(t, tree, "B2", RoleUser, "two")

	one, err := tree.SwitchToBranch("B1")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"R", "A", "B1", "B1a"}, one.CurrentBranchPath)

	two, err := one.SwitchToBranch("B2")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"R", "A", "B2"}, two.CurrentBranchPath)

	assert.Equal(t, one.CurrentBranchPath[:2], two.CurrentBranchPath[:2])
	assert.NotEqual(t, one.CurrentBranchPath[2], two.CurrentBranchPath[2])
}

func TestSwitchToBranchStopsAtFork(t *testing.T) {
	tree := NewTree()
	tree = appendMsg(t, tree, "R", RoleUser, "root")
	tree = appendMsg(t, tree, "A", RoleAssistant, "answer")
	tree = appendMsg(t, tree, "B1", RoleUser, "one")
	tree = branchFrom(t, tree, "A")
	tree = appendMsg(t, tree, "B2", RoleUser, "two")

	switched, err := tree.SwitchToBranch("R")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"R", "A"}, switched.CurrentBranchPath)
	assert.True(t, switched.IsFork("A"))
	assert.Equal(t, []NodeID{"B1", "B2"}, switched.Siblings("B2"))
}

func TestSwitchToBranchUnknownIDIsNoop(t *testing.T) {
	tree := forkTree(t)
	before := tree.Clone()

	ret, err := tree.SwitchToBranch("nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLookup)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Equal(t, before, ret)
}

func TestSwitchToBranchSurvivesCycles(t *testing.T) {
	tree := NewTree()
	tree.MessagesMap["x"] = &Message{ID: "x", Role: RoleUser, ParentID: "y", Children: []NodeID{"y"}}
	tree.MessagesMap["y"] = &Message{ID: "y", Role: RoleUser, ParentID: "x", Children: []NodeID{"x"}}

	ret, err := tree.SwitchToBranch("x")
	require.NoError(t, err)
	assert.ElementsMatch(t, []NodeID{"x", "y"}, ret.CurrentBranchPath)
}

func TestBranchFrom(t *testing.T) {
	tree := NewTree()
	tree = appendMsg(t, tree, "1", RoleUser, "a")
	tree = appendMsg(t, tree, "2", RoleAssistant, "b")
	tree = appendMsg(t, tree, "3", RoleUser, "c")

	ret := branchFrom(t, tree, "2")
	assert.Equal(t, []NodeID{"1", "2"}, ret.CurrentBranchPath)
	assert.Len(t, ret.MessagesMap, 3)

	_, err := ret.BranchFrom("3")
	assert.ErrorIs(t, err, ErrNotInBranch)
	assert.ErrorIs(t, err, ErrLookup)
}

func TestDeleteMessageCascade(t *testing.T) {
	tree := forkTree(t)
	tree, err := tree.SwitchToBranch("B")
	require.NoError(t, err)
	require.Equal(t, []NodeID{"A", "B", "D"}, tree.CurrentBranchPath)

	ret, err := tree.DeleteMessage("B")
	require.NoError(t, err)
	require.NoError(t, ret.Validate())

	assert.NotContains(t, ret.MessagesMap, NodeID("B"))
	assert.NotContains(t, ret.MessagesMap, NodeID("D"))
	assert.Equal(t, []NodeID{"C"}, ret.MessagesMap["A"].Children)
	assert.Equal(t, []NodeID{"A"}, ret.CurrentBranchPath)
}

func TestDeleteRoot(t *testing.T) {
	tree := forkTree(t)

	ret, err := tree.DeleteMessage("A")
	require.NoError(t, err)
	require.NoError(t, ret.Validate())
	assert.Empty(t, ret.MessagesMap)
	assert.Empty(t, ret.RootMessageIDs)
	assert.Empty(t, ret.CurrentBranchPath)
}

func TestDeleteUnknownMessage(t *testing.T) {
	tree := forkTree(t)
	ret, err := tree.DeleteMessage("nope")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Same(t, tree, ret)
}

func TestEditMessageTruncates(t *testing.T) {
	tree := NewTree()
	tree = appendMsg(t, tree, "X", RoleUser, "original")
	tree = appendMsg(t, tree, "Y", RoleAssistant, "reply")
	tree = appendMsg(t, tree, "Z", RoleUser, "more")

	editedAt := testTime.Add(time.Hour)
	ret, err := tree.EditMessageAt("X", "  rewritten  ", editedAt)
	require.NoError(t, err)
	require.NoError(t, ret.Validate())

	assert.NotContains(t, ret.MessagesMap, NodeID("Y"))
	assert.NotContains(t, ret.MessagesMap, NodeID("Z"))
	x := ret.MessagesMap["X"]
	assert.Empty(t, x.Children)
	assert.True(t, x.Edited)
	require.NotNil(t, x.EditedAt)
	assert.True(t, editedAt.Equal(x.EditedAt.Time))
	assert.Equal(t, NewTextContent("rewritten"), x.Content)
	assert.Equal(t, []NodeID{"X"}, ret.CurrentBranchPath)

	// the original is untouched
	assert.Len(t, tree.MessagesMap, 3)
	assert.False(t, tree.MessagesMap["X"].Edited)
}

func TestEditMessageKeepsErrorFlag(t *testing.T) {
	tree := appendMsg(t, NewTree(), "Q", RoleUser, "question")
	tree, err := tree.AppendMessage(NewErrorMessage(assert.AnError, WithID("E"), WithParentID("Q")))
	require.NoError(t, err)

	ret, err := tree.EditMessage("E", "patched by hand")
	require.NoError(t, err)
	e := ret.MessagesMap["E"]
	assert.True(t, e.IsError)
	assert.True(t, e.Edited)
	assert.Equal(t, RoleAssistant, e.Role)
	assert.Equal(t, NewTextContent("patched by hand"), e.Content)
}

func TestEditMessageDropsSiblingBranches(t *testing.T) {
	tree := forkTree(t)

	ret, err := tree.EditMessage("A", "new question")
	require.NoError(t, err)
	assert.Len(t, ret.MessagesMap, 1)
	assert.Equal(t, []NodeID{"A"}, ret.CurrentBranchPath)
}

func TestEditMessageRejectsBadInput(t *testing.T) {
	tree := forkTree(t)

	ret, err := tree.EditMessage("A", " \t ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Same(t, tree, ret)

	ret, err = tree.EditMessage("missing", "text")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Same(t, tree, ret)
}

func TestBranchMessagesSkipsUnknownIDs(t *testing.T) {
	tree := forkTree(t)
	tree.CurrentBranchPath = []NodeID{"A", "ghost", "C"}

	assert.Equal(t, []NodeID{"A", "C"}, ids(tree.BranchMessages()))
}

func TestLeafMessage(t *testing.T) {
	_, ok := NewTree().LeafMessage()
	assert.False(t, ok)

	leaf, ok := forkTree(t).LeafMessage()
	require.True(t, ok)
	assert.Equal(t, NodeID("C"), leaf.ID)

	tree := forkTree(t)
	tree.CurrentBranchPath = []NodeID{"A", "missing"}
	_, ok = tree.LeafMessage()
	assert.False(t, ok)
}

func TestMultipleRoots(t *testing.T) {
	tree := appendMsg(t, NewTree(), "r1", RoleUser, "first")
	tree.CurrentBranchPath = []NodeID{}
	tree = appendMsg(t, tree, "r2", RoleUser, "second")

	assert.Equal(t, []NodeID{"r1", "r2"}, tree.RootMessageIDs)
	assert.Equal(t, []NodeID{"r1", "r2"}, tree.Siblings("r1"))

	ret, err := tree.DeleteMessage("r1")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"r2"}, ret.RootMessageIDs)
	assert.Equal(t, []NodeID{"r2"}, ret.CurrentBranchPath)
}

func TestValidateReportsProblems(t *testing.T) {
	tree := forkTree(t)
	tree.MessagesMap["A"].Children = append(tree.MessagesMap["A"].Children, "ghost")
	tree.RootMessageIDs = append(tree.RootMessageIDs, "B")

	err := tree.Validate()
	require.Error(t, err)
	var invariantErr *InvariantError
	require.ErrorAs(t, err, &invariantErr)
	assert.Len(t, invariantErr.Problems, 2)
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tree := NewTree()
	next := 0

	pick := func() (NodeID, bool) {
		if len(tree.MessagesMap) == 0 {
			return "", false
		}
		keys := make([]NodeID, 0, len(tree.MessagesMap))
		for id := range tree.MessagesMap {
			keys = append(keys, id)
		}
		// map order is random, sort for reproducibility
		for i := 1; i < len(keys); i++ {
			for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
				keys[j], keys[j-1] = keys[j-1], keys[j]
			}
		}
		return keys[rng.Intn(len(keys))], true
	}

	for i := 0; i < 500; i++ {
		var err error
		switch op := rng.Intn(6); op {
		case 0, 1:
			next++
			role := RoleUser
			if next%2 == 0 {
				role = RoleAssistant
			}
			msg := NewMessage(role, NewTextContent("m"), WithParentID(tree.Leaf()))
			tree, err = tree.AppendMessage(msg)
			require.NoError(t, err)
		case 2:
			if id, ok := pick(); ok {
				tree, err = tree.SwitchToBranch(id)
				require.NoError(t, err)
			}
		case 3:
			if len(tree.CurrentBranchPath) > 0 {
				id := tree.CurrentBranchPath[rng.Intn(len(tree.CurrentBranchPath))]
				tree, err = tree.BranchFrom(id)
				require.NoError(t, err)
			}
		case 4:
			if id, ok := pick(); ok && rng.Intn(3) == 0 {
				tree, err = tree.DeleteMessage(id)
				require.NoError(t, err)
			}
		case 5:
			if id, ok := pick(); ok {
				tree, err = tree.EditMessage(id, "edited")
				require.NoError(t, err)
			}
		}
		require.NoError(t, tree.Validate(), "after step %d", i)
	}
}
