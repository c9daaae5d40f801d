package claude

import (
	"slices"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/go-go-golems/forkchat/pkg/providers/claude/api"
	"github.com/pkg/errors"
)

// ContentBlockMerger rebuilds a Claude reply from its streaming events.
//
// Usage:
//  1. Create a merger with NewContentBlockMerger()
//  2. Feed every streaming event to Add(), forwarding the partial events it returns
//  3. Once Add() reports done, Content() holds the final blocks
type ContentBlockMerger struct {
	response *api.MessageResponse
	blocks   map[int]*api.ContentBlock
}

func NewContentBlockMerger() *ContentBlockMerger {
	return &ContentBlockMerger{
		blocks: make(map[int]*api.ContentBlock),
	}
}

func (cbm *ContentBlockMerger) Response() *api.MessageResponse {
	return cbm.response
}

func (cbm *ContentBlockMerger) indices() []int {
	ret := make([]int, 0, len(cbm.blocks))
	for i := range cbm.blocks {
		ret = append(ret, i)
	}
	slices.Sort(ret)
	return ret
}

func (cbm *ContentBlockMerger) accumulated(t api.ContentType) string {
	var sb strings.Builder
	for _, i := range cbm.indices() {
		cb := cbm.blocks[i]
		if cb.Type != t {
			continue
		}
		switch t {
		case api.ContentTypeText:
			sb.WriteString(cb.Text)
		case api.ContentTypeThinking:
			sb.WriteString(cb.Thinking)
		}
	}
	return sb.String()
}

// Add processes one event. It returns the partial updates to forward and
// whether the message is complete.
func (cbm *ContentBlockMerger) Add(event api.StreamingEvent) ([]providers.Event, bool, error) {
	switch event.Type {
	case api.PingType:
		return nil, false, nil

	case api.MessageStartType:
		if event.Message == nil {
			return nil, false, errors.New("MessageStartType event must have a message")
		}
		cbm.response = event.Message
		return nil, false, nil

	case api.ContentBlockStartType:
		if cbm.response == nil {
			return nil, false, errors.New("ContentBlockStartType event before message_start")
		}
		if event.ContentBlock == nil {
			return nil, false, errors.New("ContentBlockStartType event must have a content block")
		}
		if _, exists := cbm.blocks[event.Index]; exists {
			return nil, false, errors.Errorf("ContentBlockStartType event with index %d already exists", event.Index)
		}
		cb := *event.ContentBlock
		cbm.blocks[event.Index] = &cb
		return nil, false, nil

	case api.ContentBlockDeltaType:
		if event.Delta == nil {
			return nil, false, errors.New("ContentBlockDeltaType event must have a delta")
		}
		cb, exists := cbm.blocks[event.Index]
		if !exists {
			return nil, false, errors.Errorf("ContentBlockDeltaType event with index %d does not exist", event.Index)
		}
		switch event.Delta.Type {
		case api.TextDeltaType:
			cb.Text += event.Delta.Text
			return []providers.Event{
				providers.NewPartialEvent(providers.ChunkText, cbm.accumulated(api.ContentTypeText)),
			}, false, nil
		case api.ThinkingDeltaType:
			cb.Thinking += event.Delta.Thinking
			return []providers.Event{
				providers.NewPartialEvent(providers.ChunkThinking, cbm.accumulated(api.ContentTypeThinking)),
			}, false, nil
		case api.SignatureDeltaType:
			cb.Signature += event.Delta.Signature
		}
		return nil, false, nil

	case api.ContentBlockStopType:
		if _, exists := cbm.blocks[event.Index]; !exists {
			return nil, false, errors.Errorf("ContentBlockStopType event with index %d does not exist", event.Index)
		}
		return nil, false, nil

	case api.MessageDeltaType:
		if cbm.response != nil && event.Delta != nil && event.Delta.StopReason != "" {
			cbm.response.StopReason = event.Delta.StopReason
		}
		if cbm.response != nil && event.Usage != nil {
			cbm.response.Usage.OutputTokens = event.Usage.OutputTokens
		}
		return nil, false, nil

	case api.MessageStopType:
		if cbm.response == nil {
			return nil, false, errors.New("MessageStopType event before message_start")
		}
		return nil, true, nil

	case api.ErrorType:
		if event.Error == nil {
			return nil, false, errors.New("ErrorType event must have an error")
		}
		return nil, false, &api.APIError{Type: event.Error.Type, Message: event.Error.Message}

	default:
		return nil, false, errors.Errorf("Unknown event type: %s", event.Type)
	}
}

// Content returns the blocks received so far, in index order. Redacted
// thinking is dropped.
func (cbm *ContentBlockMerger) Content() conversation.Content {
	ret := conversation.Content{}
	for _, i := range cbm.indices() {
		cb := cbm.blocks[i]
		switch cb.Type {
		case api.ContentTypeText:
			ret = append(ret, conversation.NewTextBlock(cb.Text))
		case api.ContentTypeThinking:
			ret = append(ret, conversation.NewThinkingBlock(cb.Thinking, cb.Signature))
		}
	}
	return ret
}
