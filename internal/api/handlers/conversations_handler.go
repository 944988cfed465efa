package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/branchcanvas/engine/internal/api/middleware"
	"github.com/branchcanvas/engine/internal/api/types"
	"github.com/branchcanvas/engine/internal/models"
	"github.com/branchcanvas/engine/internal/repository"
	appErr "github.com/branchcanvas/engine/pkg/errors"
)

type ConversationsHandler struct {
	convs repository.ConversationRepository
}

func NewConversationsHandler(convs repository.ConversationRepository) *ConversationsHandler {
	return &ConversationsHandler{convs: convs}
}

func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	includeMessages, _ := strconv.ParseBool(r.URL.Query().Get("include_messages"))
	conversations, err := h.convs.ListByUser(r.Context(), userID, includeMessages)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    conversations,
		Meta:    &types.Meta{Total: int64(len(conversations))},
	})
}

func (h *ConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var conv models.Conversation
	if err := h.convs.GetByID(r.Context(), id, &conv); err != nil {
		writeError(w, err)
		return
	}
	if conv.UserID != userID {
		writeError(w, appErr.New(appErr.CodeNotFound, "conversation not found"))
		return
	}

	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: conv})
}

func (h *ConversationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var conv models.Conversation
	if err := h.convs.GetByID(r.Context(), id, &conv); err != nil {
		writeError(w, err)
		return
	}
	if conv.UserID != userID {
		writeError(w, appErr.New(appErr.CodeNotFound, "conversation not found"))
		return
	}

	if err := h.convs.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

// authedUserID parses the user id placed in context by the auth middleware.
func authedUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.GetUserID(r.Context())
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, appErr.New(appErr.CodeUnauthorized, "missing or invalid credentials")
	}
	return id, nil
}
