// Package engine implements the conversation-tree mutation operations: the
// compound transactions that keep the in-memory canvas, the persisted
// message tree, and the completion gateway consistent with each other.
package engine

import (
	"context"
	"math/rand"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/branchcanvas/engine/internal/completion"
	"github.com/branchcanvas/engine/internal/graph"
	"github.com/branchcanvas/engine/internal/layout"
	"github.com/branchcanvas/engine/internal/models"
	"github.com/branchcanvas/engine/internal/repository"
	"github.com/branchcanvas/engine/pkg/logger"
)

// Offsets for placeholder positions before layout runs.
const (
	childOffsetX  = 200
	childOffsetY  = 100
	answerOffsetX = 200
	canvasBound   = 400
)

// TitleEnqueuer schedules background title generation for a fresh
// conversation. May be nil when no worker is deployed.
type TitleEnqueuer interface {
	EnqueueTitle(ctx context.Context, conversationID uuid.UUID) error
}

// Engine owns one user's canvas. All writes to the tree state store pass
// through its methods; persistence and completion calls happen at operation
// boundaries with no automatic rollback of already-completed steps.
type Engine struct {
	userID  uuid.UUID
	store   *graph.Store
	layout  *layout.Coordinator
	convs   repository.ConversationRepository
	msgs    repository.MessageRepository
	gateway completion.Gateway
	titles  TitleEnqueuer

	// advisory: blocks redundant submissions from the same control, not a
	// lock
	loading atomic.Bool
}

func New(
	userID uuid.UUID,
	store *graph.Store,
	coord *layout.Coordinator,
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	gateway completion.Gateway,
	titles TitleEnqueuer,
) *Engine {
	return &Engine{
		userID:  userID,
		store:   store,
		layout:  coord,
		convs:   convs,
		msgs:    msgs,
		gateway: gateway,
		titles:  titles,
	}
}

// Store exposes the underlying tree state store for read access.
func (e *Engine) Store() *graph.Store { return e.store }

// Layout exposes the layout coordinator.
func (e *Engine) Layout() *layout.Coordinator { return e.layout }

// IsLoading reports whether an operation is in flight.
func (e *Engine) IsLoading() bool { return e.loading.Load() }

// Load hydrates the store from the user's persisted conversations: one node
// per message, one reply edge per parent link.
func (e *Engine) Load(ctx context.Context) error {
	conversations, err := e.convs.ListByUser(ctx, e.userID, true)
	if err != nil {
		return err
	}

	var nodes []graph.Node
	var edges []graph.Edge
	for _, conv := range conversations {
		for _, msg := range conv.Messages {
			nodes = append(nodes, nodeFromMessage(msg))
			if msg.ParentID != nil {
				edges = append(edges, graph.Edge{
					ID:     "edge-" + conv.ID.String() + "-" + msg.ID.String(),
					Source: nodeID(*msg.ParentID),
					Target: nodeID(msg.ID),
				})
			}
		}
	}

	e.store.SetNodes(func([]graph.Node) []graph.Node { return nodes })
	e.store.SetEdges(func([]graph.Edge) []graph.Edge { return edges })
	logger.L().Info("canvas loaded",
		zap.String("user_id", e.userID.String()),
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
	)
	return nil
}

// AddQuestionNode creates a new empty question node. With a parent, the node
// is offset from it and linked by a reply edge, and the draft message points
// at the parent's persisted message; without one, the node lands at a random
// spot within the canvas bound, fully detached.
//
// Branching policy: the new question is always a child of the clicked node,
// whatever its kind. Alternative phrasings branch from the answer they
// question; follow-ups branch from follow-ups.
func (e *Engine) AddQuestionNode(parentNodeID string) (graph.Node, bool) {
	node := graph.Node{
		ID:   graph.NewID(),
		Kind: graph.KindQuestion,
		Position: graph.Position{
			X: rand.Float64() * canvasBound,
			Y: rand.Float64() * canvasBound,
		},
	}

	if parentNodeID != "" {
		parent, ok := e.store.Node(parentNodeID)
		if !ok {
			return graph.Node{}, false
		}
		node.Position = graph.Position{
			X: parent.Position.X + childOffsetX,
			Y: parent.Position.Y + childOffsetY,
		}
		node.Message.ParentID = parent.Message.ID
		node.Message.ConversationID = parent.Message.ConversationID
		node.Selectable = parent.Selectable

		e.store.AddNode(node)
		e.store.AddEdge(graph.Edge{
			ID:     graph.NewID(),
			Source: parent.ID,
			Target: node.ID,
		})
		// the edge collection changed, so positions are recomputed
		e.layout.Request()
	} else {
		e.store.AddNode(node)
	}
	return node, true
}

// SubmitQuestion runs the full question round trip: optimistic content
// update, conversation adoption or creation, question persistence and
// completion issued concurrently, answer persistence, answer node creation,
// re-layout. Completed writes are not rolled back on failure.
func (e *Engine) SubmitQuestion(ctx context.Context, nodeID, text string) error {
	node, ok := e.store.Node(nodeID)
	if !ok {
		// node deleted since the intent was emitted
		return nil
	}

	e.loading.Store(true)
	defer e.loading.Store(false)

	e.store.UpdateNode(nodeID, func(n *graph.Node) { n.Content = text })

	convID, err := e.adoptConversation(ctx, node, text)
	if err != nil {
		logger.L().Error("submit question: conversation failed", zap.Error(err))
		return err
	}

	hasParent := node.Message.ParentID.Valid
	questionParent := questionParentID(node)

	var question *models.Message
	var answer string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		question, err = e.msgs.CreateMessage(gctx, text, models.RoleUser, convID, questionParent)
		return err
	})
	g.Go(func() error {
		messages := []completion.Message{}
		if hasParent {
			chain, err := e.ContextForMessage(gctx, node.Message.ParentID.UUID)
			if err != nil {
				return err
			}
			messages = chain
		}
		messages = append(messages, completion.Message{Role: completion.RoleUser, Content: text})

		var err error
		answer, err = e.gateway.Complete(gctx, messages)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.L().Error("submit question failed", zap.String("node_id", nodeID), zap.Error(err))
		return err
	}

	// the answer's parent is the question, so this strictly follows both
	answerMsg, err := e.msgs.CreateMessage(ctx, answer, models.RoleAssistant, convID, &question.ID)
	if err != nil {
		logger.L().Error("submit question: persist answer failed", zap.Error(err))
		return err
	}

	e.store.UpdateNode(nodeID, func(n *graph.Node) {
		n.Content = text
		n.Message.ID = uuid.NullUUID{UUID: question.ID, Valid: true}
		n.Message.ParentID = node.Message.ParentID
		n.Message.ConversationID = uuid.NullUUID{UUID: convID, Valid: true}
	})

	answerNode := graph.Node{
		ID:      graph.NewID(),
		Kind:    graph.KindAnswer,
		Content: answer,
		Position: graph.Position{
			X: node.Position.X + answerOffsetX,
			Y: node.Position.Y,
		},
		Selectable: node.Selectable,
		Message: graph.MessageRef{
			ID:             uuid.NullUUID{UUID: answerMsg.ID, Valid: true},
			ParentID:       uuid.NullUUID{UUID: question.ID, Valid: true},
			ConversationID: uuid.NullUUID{UUID: convID, Valid: true},
		},
	}
	e.store.AddNode(answerNode)
	e.store.AddEdge(graph.Edge{ID: graph.NewID(), Source: nodeID, Target: answerNode.ID})

	e.layout.Request()
	logger.L().Info("question submitted",
		zap.String("node_id", nodeID),
		zap.String("question_id", question.ID.String()),
		zap.String("answer_id", answerMsg.ID.String()),
	)
	return nil
}

// adoptConversation returns the node's conversation id, creating a fresh
// conversation keyed by the question text when the node has none.
func (e *Engine) adoptConversation(ctx context.Context, node graph.Node, text string) (uuid.UUID, error) {
	if node.Message.ConversationID.Valid {
		return node.Message.ConversationID.UUID, nil
	}
	conv := &models.Conversation{UserID: e.userID, Title: text}
	if err := e.convs.Create(ctx, conv); err != nil {
		return uuid.Nil, err
	}
	if e.titles != nil {
		if err := e.titles.EnqueueTitle(ctx, conv.ID); err != nil {
			logger.L().Warn("enqueue title generation failed", zap.Error(err))
		}
	}
	return conv.ID, nil
}

// questionParentID resolves the persisted parent for a submitted question:
// the node's existing parent link when present, else its own prior message
// (re-submission of an already persisted question), else none (root).
func questionParentID(node graph.Node) *uuid.UUID {
	if node.Message.ParentID.Valid {
		id := node.Message.ParentID.UUID
		return &id
	}
	if node.Message.ID.Valid {
		id := node.Message.ID.UUID
		return &id
	}
	return nil
}

// EditAndCascade overwrites the node's content, then regenerates every
// direct child with a single completion call on the new text alone. Deeper
// descendants are left untouched.
func (e *Engine) EditAndCascade(ctx context.Context, nodeID, newText string) error {
	node, ok := e.store.Node(nodeID)
	if !ok {
		return nil
	}

	e.loading.Store(true)
	defer e.loading.Store(false)

	e.store.UpdateNode(nodeID, func(n *graph.Node) { n.Content = newText })
	if node.Message.ID.Valid {
		if _, err := e.msgs.UpdateContent(ctx, node.Message.ID.UUID, newText, roleForKind(node.Kind)); err != nil {
			logger.L().Error("edit: persist node content failed", zap.Error(err))
			return err
		}
	}

	children := e.store.ChildrenOf(nodeID)

	answer, err := e.gateway.Complete(ctx, []completion.Message{{Role: completion.RoleUser, Content: newText}})
	if err != nil {
		logger.L().Error("edit cascade completion failed", zap.String("node_id", nodeID), zap.Error(err))
		return err
	}

	for _, childID := range children {
		child, ok := e.store.Node(childID)
		if !ok || !child.Message.ID.Valid {
			continue
		}
		if _, err := e.msgs.UpdateContent(ctx, child.Message.ID.UUID, answer, models.RoleAssistant); err != nil {
			logger.L().Error("edit cascade: persist child failed", zap.String("child_id", childID), zap.Error(err))
			return err
		}
		e.store.UpdateNode(childID, func(n *graph.Node) { n.Content = answer })
	}
	return nil
}

// Refresh regenerates the node's own content from itself alone, with no
// ancestor context.
func (e *Engine) Refresh(ctx context.Context, nodeID string) error {
	node, ok := e.store.Node(nodeID)
	if !ok || node.Content == "" {
		return nil
	}

	e.loading.Store(true)
	defer e.loading.Store(false)

	answer, err := e.gateway.Complete(ctx, []completion.Message{{Role: completion.RoleUser, Content: node.Content}})
	if err != nil {
		logger.L().Error("refresh completion failed", zap.String("node_id", nodeID), zap.Error(err))
		return err
	}

	if node.Message.ID.Valid {
		if _, err := e.msgs.UpdateContent(ctx, node.Message.ID.UUID, answer, models.RoleAssistant); err != nil {
			logger.L().Error("refresh: persist failed", zap.Error(err))
			return err
		}
	}
	e.store.UpdateNode(nodeID, func(n *graph.Node) { n.Content = answer })
	return nil
}

// DeleteNode removes the node and its entire descendant subtree, persisted
// side first, then the matching local reachable set: edges, then nodes.
func (e *Engine) DeleteNode(ctx context.Context, nodeID string) error {
	node, ok := e.store.Node(nodeID)
	if !ok {
		return nil
	}

	if node.Message.ID.Valid {
		if err := e.msgs.DeleteWithChildren(ctx, node.Message.ID.UUID); err != nil {
			logger.L().Error("delete subtree failed", zap.String("node_id", nodeID), zap.Error(err))
			return err
		}
	}

	reach := e.store.ReachableFrom(nodeID)

	edgeIDs := map[string]struct{}{}
	for _, edge := range e.store.Edges() {
		_, srcGone := reach[edge.Source]
		_, dstGone := reach[edge.Target]
		if srcGone || dstGone {
			edgeIDs[edge.ID] = struct{}{}
		}
	}
	e.store.RemoveEdges(edgeIDs)
	e.store.RemoveNodes(reach)

	e.layout.Request()
	logger.L().Info("node deleted",
		zap.String("node_id", nodeID),
		zap.Int("removed_nodes", len(reach)),
		zap.Int("removed_edges", len(edgeIDs)),
	)
	return nil
}

// DeleteAll issues one recursive delete per persisted root-or-any node id in
// parallel, waits for all of them, then clears the canvas. A recursive
// delete of an id already removed by an earlier cascade is a safe no-op.
func (e *Engine) DeleteAll(ctx context.Context) error {
	var ids []uuid.UUID
	for _, n := range e.store.Nodes() {
		if n.Message.ID.Valid {
			ids = append(ids, n.Message.ID.UUID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return e.msgs.DeleteWithChildren(gctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		// keep local state: clearing now would hide rows that still exist
		logger.L().Error("delete all failed", zap.Error(err))
		return err
	}

	e.store.Clear()
	logger.L().Info("canvas cleared", zap.String("user_id", e.userID.String()), zap.Int("messages", len(ids)))
	return nil
}

// SetSelectable toggles selection view-mode on every node.
func (e *Engine) SetSelectable(selectable bool) {
	e.store.SetAllSelectable(selectable)
}

// ToggleNodeSelected flips exactly one node's selected flag.
func (e *Engine) ToggleNodeSelected(nodeID string, selected bool) {
	e.store.UpdateNode(nodeID, func(n *graph.Node) { n.Selected = selected })
}

// CollectSelected serializes the selected nodes, in node-collection order,
// as "kind: content" lines, and leaves selection mode. The caller (browser)
// owns the clipboard.
func (e *Engine) CollectSelected() string {
	var lines []string
	for _, n := range e.store.Nodes() {
		if n.Selected {
			lines = append(lines, string(n.Kind)+": "+n.Content)
		}
	}
	e.store.SetAllSelectable(false)
	return strings.Join(lines, "\n")
}

func nodeID(messageID uuid.UUID) string { return "msg-" + messageID.String() }

func roleForKind(kind graph.Kind) string {
	if kind == graph.KindQuestion {
		return models.RoleUser
	}
	return models.RoleAssistant
}

func nodeFromMessage(msg models.Message) graph.Node {
	kind := graph.KindAnswer
	if msg.Role == models.RoleUser {
		kind = graph.KindQuestion
	}
	return graph.Node{
		ID:      nodeID(msg.ID),
		Kind:    kind,
		Content: msg.Content,
		Message: graph.MessageRef{
			ID:             uuid.NullUUID{UUID: msg.ID, Valid: true},
			ParentID:       nullableUUID(msg.ParentID),
			ConversationID: uuid.NullUUID{UUID: msg.ConversationID, Valid: true},
		},
	}
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
