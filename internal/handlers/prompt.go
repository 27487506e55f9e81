package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/promptcraft/promptcraft-chat/internal/models"
)

type promptRequest struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`
}

// HandlePrompts lists the custom prompts. It accepts skip and limit query parameters.
func (m Main) HandlePrompts(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := pagination(w, r)
	if !ok {
		return
	}

	prompts, err := m.store.Prompts(r.Context(), skip, limit)
	if err != nil {
		m.storeError(w, err, "list prompts", "")
		return
	}
	if prompts == nil {
		prompts = []models.Prompt{}
	}
	writeJSON(w, http.StatusOK, prompts)
}

// HandleCreatePrompt saves a custom prompt. Names are unique.
func (m Main) HandleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" || req.Content == nil || strings.TrimSpace(*req.Content) == "" {
		writeError(w, http.StatusBadRequest, "name and content are required.")
		return
	}

	p, err := m.store.AddPrompt(r.Context(), models.Prompt{
		Name:      strings.TrimSpace(*req.Name),
		Content:   *req.Content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		m.promptError(w, err, "create prompt")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandlePrompt returns a single custom prompt.
func (m Main) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	p, err := m.store.Prompt(r.Context(), r.PathValue("id"))
	if err != nil {
		m.promptError(w, err, "get prompt")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdatePrompt changes the name and/or content of a custom prompt.
func (m Main) HandleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := m.store.Prompt(r.Context(), r.PathValue("id"))
	if err != nil {
		m.promptError(w, err, "get prompt")
		return
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name must not be empty.")
			return
		}
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			writeError(w, http.StatusBadRequest, "content must not be empty.")
			return
		}
		p.Content = *req.Content
	}

	p, err = m.store.UpdatePrompt(r.Context(), p)
	if err != nil {
		m.promptError(w, err, "update prompt")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDeletePrompt deletes a custom prompt.
func (m Main) HandleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := m.store.DeletePrompt(r.Context(), r.PathValue("id")); err != nil {
		m.promptError(w, err, "delete prompt")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m Main) promptError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, models.ErrPromptNameTaken) {
		writeError(w, http.StatusBadRequest, "Prompt with this name already exists.")
		return
	}
	m.storeError(w, err, op, "Prompt not found.")
}
