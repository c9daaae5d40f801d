package conversation

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type chatHeader struct {
	ID           ChatID    `json:"id"`
	Title        string    `json:"title"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Emoji        string    `json:"emoji"`
	LastMessage  string    `json:"lastMessage"`
	Timestamp    Timestamp `json:"timestamp"`
	IsPinned     bool      `json:"isPinned"`
	SystemPrompt string    `json:"systemPrompt"`
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// DecodeDocument reads a stored chat document.
//
// Only a payload that isn't a JSON object or carries malformed metadata is an
// error. Messages that fail to decode are dropped with a warning so that a
// partly corrupted tree still opens.
func DecodeDocument(data []byte) (*Document, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "chat document is not a JSON object")
	}
	if fields == nil {
		return nil, errors.New("chat document is null")
	}

	var header chatHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, errors.Wrap(err, "could not decode chat metadata")
	}

	doc := &Document{
		Chat: Chat{
			ID:           header.ID,
			Title:        header.Title,
			Provider:     header.Provider,
			Model:        header.Model,
			Emoji:        header.Emoji,
			LastMessage:  header.LastMessage,
			Timestamp:    header.Timestamp,
			IsPinned:     header.IsPinned,
			SystemPrompt: header.SystemPrompt,
		},
	}
	if raw, ok := fields["messages"]; ok && !isNull(raw) {
		doc.Messages = raw
	}

	raw, ok := fields["messagesMap"]
	if !ok || isNull(raw) {
		return doc, nil
	}

	doc.MessagesMap = decodeMessagesMap(header.ID, raw)
	doc.RootMessageIDs = decodeIDList(header.ID, "rootMessageIds", fields["rootMessageIds"])
	doc.CurrentBranchPath = decodeIDList(header.ID, "currentBranchPath", fields["currentBranchPath"])

	return doc, nil
}

func decodeMessagesMap(chatID ChatID, raw json.RawMessage) map[NodeID]*Message {
	ret := map[NodeID]*Message{}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warn().Err(err).Str("chat", chatID.String()).Msg("messagesMap is not an object, treating as empty")
		return ret
	}

	for key, entry := range entries {
		var msg Message
		if err := json.Unmarshal(entry, &msg); err != nil {
			log.Warn().Err(err).
				Str("chat", chatID.String()).
				Str("id", key).
				Msg("could not decode message, dropping it")
			continue
		}
		if msg.ID.IsZero() {
			msg.ID = NodeID(key)
		}
		ret[NodeID(key)] = &msg
	}

	return ret
}

func decodeIDList(chatID ChatID, field string, raw json.RawMessage) []NodeID {
	if isNull(raw) {
		return []NodeID{}
	}
	var ids []NodeID
	if err := json.Unmarshal(raw, &ids); err != nil {
		log.Warn().Err(err).Str("chat", chatID.String()).Str("field", field).Msg("could not decode id list, treating as empty")
		return []NodeID{}
	}
	return ids
}

type legacyMessage struct {
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
	IsError   bool      `json:"isError"`
}

// Migrate brings a stored document to the current tree form.
//
// Documents that already have a messagesMap only get their provider and model
// backfilled. Anything else is treated as the legacy linear form: each entry
// of the legacy list becomes a message chained to the previous one, and the
// whole chain becomes the current branch. A missing or malformed list gives
// an empty tree. The second return value reports whether anything changed and
// the document should be written back.
func Migrate(doc *Document) (*Chat, bool) {
	if doc == nil {
		return NewChat(""), true
	}

	chat := doc.Chat.Clone()
	migrated := false
	if chat.Provider == "" {
		chat.Provider = DefaultProvider
		migrated = true
	}
	if chat.Model == "" {
		chat.Model = DefaultModel
		migrated = true
	}

	if !doc.IsLegacy() {
		return chat, migrated
	}

	chat.Tree = *treeFromLegacy(chat.ID, doc.Messages)
	log.Debug().
		Str("chat", chat.ID.String()).
		Int("messages", chat.Len()).
		Msg("migrated legacy chat")

	return chat, true
}

func treeFromLegacy(chatID ChatID, raw json.RawMessage) *Tree {
	tree := NewTree()
	if isNull(raw) {
		return tree
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warn().Err(err).Str("chat", chatID.String()).Msg("legacy message list is malformed, starting empty")
		return tree
	}

	var parent NodeID
	for i, entry := range entries {
		var lm legacyMessage
		if err := json.Unmarshal(entry, &lm); err != nil {
			log.Warn().Err(err).Str("chat", chatID.String()).Int("index", i).Msg("skipping malformed legacy message")
			continue
		}
		msg := &Message{
			ID:        NewNodeID(),
			Role:      lm.Role,
			Content:   lm.Content,
			Timestamp: lm.Timestamp,
			IsError:   lm.IsError,
			ParentID:  parent,
			Children:  []NodeID{},
		}
		if msg.Content == nil {
			msg.Content = Content{}
		}

		tree.MessagesMap[msg.ID] = msg
		if parent.IsZero() {
			tree.RootMessageIDs = append(tree.RootMessageIDs, msg.ID)
		} else {
			p := tree.MessagesMap[parent]
			p.Children = append(p.Children, msg.ID)
		}
		tree.CurrentBranchPath = append(tree.CurrentBranchPath, msg.ID)
		parent = msg.ID
	}

	return tree
}
