package server

import (
	"net/http"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/prompts"
	"github.com/gorilla/mux"
)

func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	ps, err := s.prompts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) getPrompt(w http.ResponseWriter, r *http.Request) {
	p, err := s.prompts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createPrompt(w http.ResponseWriter, r *http.Request) {
	var p prompts.Prompt
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = ""
	s.savePrompt(w, r, &p, http.StatusCreated)
}

func (s *Server) updatePrompt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.prompts.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	var p prompts.Prompt
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = id
	s.savePrompt(w, r, &p, http.StatusOK)
}

// savePrompt picks an icon for presets that still have the default one.
func (s *Server) savePrompt(w http.ResponseWriter, r *http.Request, p *prompts.Prompt, status int) {
	if p.Icon == "" || p.Icon == conversation.DefaultEmoji {
		source := strings.TrimSpace(p.SystemPrompt)
		if source == "" {
			source = strings.TrimSpace(p.Title)
		}
		p.Icon = conversation.DefaultEmoji
		if source != "" {
			p.Icon = s.summarizer.Emoji(r.Context(), source)
		}
	}
	saved, err := s.prompts.Save(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, saved)
}

func (s *Server) deletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.prompts.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
