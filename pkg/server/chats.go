package server

import (
	"net/http"

	"github.com/go-go-golems/forkchat/pkg/chat"
	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

func chatID(r *http.Request) conversation.ChatID {
	return conversation.ChatID(mux.Vars(r)["id"])
}

func messageID(r *http.Request) conversation.NodeID {
	return conversation.NodeID(mux.Vars(r)["mid"])
}

type contentRequest struct {
	Content string `json:"content"`
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	var req chat.CreateRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	c, err := s.chats.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	c, err := s.chats.Get(r.Context(), chatID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// putChat replaces the stored document with the request body.
func (s *Server) putChat(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := conversation.DecodeDocument(body)
	if err != nil {
		writeError(w, r, errors.Wrapf(errBadRequest, "%s", err))
		return
	}
	if _, err := s.chats.Replace(r.Context(), chatID(r), doc); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) patchChat(w http.ResponseWriter, r *http.Request) {
	var patch chat.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.chats.Update(r.Context(), chatID(r), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chats.Delete(r.Context(), chatID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) getBranch(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chats.BranchMessages(r.Context(), chatID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	view, err := s.chats.TreeView(r.Context(), chatID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// sendMessage blocks until the reply is stored. Drafts go out on the events
// stream meanwhile.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.chats.Send(r.Context(), chatID(r), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.observeReply(c)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.chats.EditMessage(r.Context(), chatID(r), messageID(r), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) regenerate(w http.ResponseWriter, r *http.Request) {
	c, err := s.chats.Regenerate(r.Context(), chatID(r), messageID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.observeReply(c)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) switchBranch(w http.ResponseWriter, r *http.Request) {
	c, err := s.chats.SwitchBranch(r.Context(), chatID(r), messageID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) branchFrom(w http.ResponseWriter, r *http.Request) {
	c, err := s.chats.BranchFrom(r.Context(), chatID(r), messageID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	c, err := s.chats.DeleteMessage(r.Context(), chatID(r), messageID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
