// Package graph owns the canonical in-memory node/edge representation of the
// conversation tree shown on the canvas. It is the single shared mutable
// resource of the mutation engine; all writes go through Store methods.
package graph

import "github.com/google/uuid"

// Kind tags a node as a user question or a generated answer.
type Kind string

const (
	KindQuestion Kind = "question"
	KindAnswer   Kind = "answer"
)

// Position is a 2D canvas coordinate. Positions are owned by the layout
// coordinator; mutation code only writes placeholders before layout runs.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MessageRef ties a node to its persisted message. A freshly added question
// node carries only linkage (parent, conversation) until the row exists; ID
// becomes valid once the persistence gateway confirms creation. The Valid
// flags make "does this node have a message id yet" an explicit check
// instead of an optional-field guess.
type MessageRef struct {
	ID             uuid.NullUUID `json:"id"`
	ParentID       uuid.NullUUID `json:"parent_id"`
	ConversationID uuid.NullUUID `json:"conversation_id"`
}

// Node is the visual counterpart of a message, or a not-yet-persisted draft.
type Node struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Content    string     `json:"content"`
	Position   Position   `json:"position"`
	Selected   bool       `json:"selected"`
	Selectable bool       `json:"selectable"`
	Message    MessageRef `json:"message"`
}

// Edge is a directed reply-of relation: Target replies to (or was generated
// from) Source.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// NewID returns a fresh node/edge identifier.
func NewID() string { return uuid.NewString() }
