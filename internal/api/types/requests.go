package types

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AddNodeRequest struct {
	ParentID string `json:"parent_id"`
}

type SubmitQuestionRequest struct {
	Text string `json:"text" validate:"required"`
}

type EditNodeRequest struct {
	Text string `json:"text" validate:"required"`
}

type SelectableRequest struct {
	Selectable bool `json:"selectable"`
}

type SelectedRequest struct {
	Selected bool `json:"selected"`
}

type LayoutRequest struct {
	Algorithm    string  `json:"algorithm" validate:"omitempty,oneof=layered force"`
	Direction    string  `json:"direction" validate:"omitempty,oneof=down right"`
	NodeSpacing  float64 `json:"node_spacing" validate:"gte=0"`
	LayerSpacing float64 `json:"layer_spacing" validate:"gte=0"`
}
