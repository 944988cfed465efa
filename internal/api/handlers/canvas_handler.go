package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/branchcanvas/engine/internal/api/types"
	"github.com/branchcanvas/engine/internal/engine"
	"github.com/branchcanvas/engine/internal/graph"
	"github.com/branchcanvas/engine/internal/layout"
	"github.com/branchcanvas/engine/internal/models"
	"github.com/branchcanvas/engine/internal/repository"
	appErr "github.com/branchcanvas/engine/pkg/errors"
)

// CanvasHandler translates the browser's intent events into engine
// operations. Each endpoint mutates the authenticated user's canvas and
// returns the resulting node/edge state; layout runs asynchronously and is
// pushed over the websocket when it lands.
type CanvasHandler struct {
	manager   *engine.Manager
	snapshots repository.SnapshotRepository
	validate  *validator.Validate
}

func NewCanvasHandler(manager *engine.Manager, snapshots repository.SnapshotRepository) *CanvasHandler {
	return &CanvasHandler{
		manager:   manager,
		snapshots: snapshots,
		validate:  validator.New(),
	}
}

// CanvasState is the wire form of one user's canvas.
type CanvasState struct {
	Nodes    []graph.Node `json:"nodes"`
	Edges    []graph.Edge `json:"edges"`
	Revision uint64       `json:"revision"`
	Loading  bool         `json:"loading"`
}

func stateOf(eng *engine.Engine) CanvasState {
	nodes, edges, rev := eng.Store().Snapshot()
	if nodes == nil {
		nodes = []graph.Node{}
	}
	if edges == nil {
		edges = []graph.Edge{}
	}
	return CanvasState{Nodes: nodes, Edges: edges, Revision: rev, Loading: eng.IsLoading()}
}

func (h *CanvasHandler) engineFor(r *http.Request) (*engine.Engine, error) {
	userID, err := authedUserID(r)
	if err != nil {
		return nil, err
	}
	return h.manager.ForUser(r.Context(), userID)
}

// Get returns the current canvas state.
func (h *CanvasHandler) Get(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: stateOf(eng)})
}

// AddNode creates an empty question node, optionally attached to a parent.
func (h *CanvasHandler) AddNode(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.AddNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}

	node, ok := eng.AddQuestionNode(req.ParentID)
	if !ok {
		writeError(w, appErr.New(appErr.CodeNotFound, "parent node not found"))
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{
		Success: true,
		Data: map[string]any{
			"node":   node,
			"canvas": stateOf(eng),
		},
	})
}

// SubmitQuestion persists the question, requests a completion for it, and
// attaches the answer node.
func (h *CanvasHandler) SubmitQuestion(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.SubmitQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := eng.SubmitQuestion(r.Context(), chi.URLParam(r, "id"), req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: stateOf(eng)})
}

// EditNode rewrites a question node's text and regenerates its direct
// answers.
func (h *CanvasHandler) EditNode(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.EditNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := eng.EditAndCascade(r.Context(), chi.URLParam(r, "id"), req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: stateOf(eng)})
}

// RefreshNode re-asks the node's question and overwrites its content with a
// fresh completion.
func (h *CanvasHandler) RefreshNode(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := eng.Refresh(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: stateOf(eng)})
}

// DeleteNode removes a node and its entire subtree.
func (h *CanvasHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := eng.DeleteNode(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: stateOf(eng)})
}

// DeleteAll clears the whole canvas.
func (h *CanvasHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := eng.DeleteAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: stateOf(eng)})
}

// SetSelectable toggles selection mode across every node.
func (h *CanvasHandler) SetSelectable(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.SelectableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	eng.SetSelectable(req.Selectable)
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: stateOf(eng)})
}

// SetSelected marks or unmarks one node for export.
func (h *CanvasHandler) SetSelected(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.SelectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	eng.ToggleNodeSelected(chi.URLParam(r, "id"), req.Selected)
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: stateOf(eng)})
}

// Export serializes the selected nodes as text and exits selection mode.
func (h *CanvasHandler) Export(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	text := eng.CollectSelected()
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    map[string]any{"text": text},
	})
}

// Layout runs a synchronous layout pass with the requested options.
func (h *CanvasHandler) Layout(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.LayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid layout options")
		return
	}

	opts := eng.Layout().Options()
	if req.Algorithm != "" {
		opts.Algorithm = layout.Algorithm(req.Algorithm)
	}
	if req.Direction != "" {
		opts.Direction = layout.Direction(req.Direction)
	}
	if req.NodeSpacing > 0 {
		opts.NodeSpacing = req.NodeSpacing
	}
	if req.LayerSpacing > 0 {
		opts.LayerSpacing = req.LayerSpacing
	}
	eng.Layout().SetOptions(opts)

	if err := eng.Layout().RunNow(r.Context(), opts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: stateOf(eng)})
}

// SaveSnapshot persists the current canvas as the next snapshot version.
func (h *CanvasHandler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	eng, err := h.manager.ForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	state := stateOf(eng)
	nodesJSON, err := json.Marshal(state.Nodes)
	if err != nil {
		writeError(w, appErr.Wrap(err, appErr.CodeInternal, "encode nodes failed"))
		return
	}
	edgesJSON, err := json.Marshal(state.Edges)
	if err != nil {
		writeError(w, appErr.Wrap(err, appErr.CodeInternal, "encode edges failed"))
		return
	}

	snap := models.CanvasSnapshot{
		UserID: userID,
		Nodes:  nodesJSON,
		Edges:  edgesJSON,
	}
	if err := h.snapshots.SaveNew(r.Context(), &snap); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: snap})
}

// CurrentSnapshot returns the latest saved canvas snapshot.
func (h *CanvasHandler) CurrentSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var snap models.CanvasSnapshot
	if err := h.snapshots.GetCurrent(r.Context(), userID, &snap); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: snap})
}

// ListSnapshots returns every saved snapshot version, newest first.
func (h *CanvasHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snaps, err := h.snapshots.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    snaps,
		Meta:    &types.Meta{Total: int64(len(snaps))},
	})
}
