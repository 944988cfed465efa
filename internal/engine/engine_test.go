package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/branchcanvas/engine/internal/completion"
	"github.com/branchcanvas/engine/internal/graph"
	"github.com/branchcanvas/engine/internal/layout"
	"github.com/branchcanvas/engine/internal/models"
	"github.com/branchcanvas/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("info", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// Mock implementations

type mockConversationRepo struct {
	mock.Mock
}

func (m *mockConversationRepo) Create(ctx context.Context, obj *models.Conversation) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockConversationRepo) GetByID(ctx context.Context, id any, dest *models.Conversation) error {
	args := m.Called(ctx, id, dest)
	return args.Error(0)
}

func (m *mockConversationRepo) Update(ctx context.Context, obj *models.Conversation) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockConversationRepo) Delete(ctx context.Context, id any) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID, includeMessages bool) ([]models.Conversation, error) {
	args := m.Called(ctx, userID, includeMessages)
	if v := args.Get(0); v != nil {
		return v.([]models.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockConversationRepo) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	args := m.Called(ctx, id, title)
	return args.Error(0)
}

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) Create(ctx context.Context, obj *models.Message) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockMessageRepo) GetByID(ctx context.Context, id any, dest *models.Message) error {
	args := m.Called(ctx, id, dest)
	return args.Error(0)
}

func (m *mockMessageRepo) Update(ctx context.Context, obj *models.Message) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockMessageRepo) Delete(ctx context.Context, id any) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMessageRepo) CreateMessage(ctx context.Context, content, role string, conversationID uuid.UUID, parentID *uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, content, role, conversationID, parentID)
	if v := args.Get(0); v != nil {
		return v.(*models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMessageRepo) UpdateContent(ctx context.Context, id uuid.UUID, content, role string) (*models.Message, error) {
	args := m.Called(ctx, id, content, role)
	if v := args.Get(0); v != nil {
		return v.(*models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMessageRepo) GetParentMessages(ctx context.Context, id uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.([]models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMessageRepo) DeleteWithChildren(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Complete(ctx context.Context, messages []completion.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

type mockTitleEnqueuer struct {
	mock.Mock
}

func (m *mockTitleEnqueuer) EnqueueTitle(ctx context.Context, conversationID uuid.UUID) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type testDeps struct {
	convs   *mockConversationRepo
	msgs    *mockMessageRepo
	gateway *mockGateway
	titles  *mockTitleEnqueuer
	store   *graph.Store
}

func newTestEngine(t *testing.T) (*Engine, *testDeps) {
	t.Helper()
	deps := &testDeps{
		convs:   &mockConversationRepo{},
		msgs:    &mockMessageRepo{},
		gateway: &mockGateway{},
		titles:  &mockTitleEnqueuer{},
		store:   graph.NewStore(),
	}
	// long debounce keeps the background layout pass out of assertions
	coord := layout.NewCoordinator(deps.store, layout.Layered{}, time.Hour, layout.DefaultOptions())
	eng := New(uuid.New(), deps.store, coord, deps.convs, deps.msgs, deps.gateway, deps.titles)
	return eng, deps
}

func persistedNode(id string, kind graph.Kind, content string, msgID, convID uuid.UUID) graph.Node {
	return graph.Node{
		ID:      id,
		Kind:    kind,
		Content: content,
		Message: graph.MessageRef{
			ID:             uuid.NullUUID{UUID: msgID, Valid: true},
			ConversationID: uuid.NullUUID{UUID: convID, Valid: true},
		},
	}
}

func TestAddQuestionNodeDetached(t *testing.T) {
	eng, deps := newTestEngine(t)

	node, ok := eng.AddQuestionNode("")
	require.True(t, ok)
	require.Equal(t, graph.KindQuestion, node.Kind)
	require.Empty(t, node.Content)
	require.False(t, node.Message.ID.Valid)
	require.False(t, node.Message.ConversationID.Valid)

	require.GreaterOrEqual(t, node.Position.X, float64(0))
	require.Less(t, node.Position.X, float64(400))

	require.Len(t, deps.store.Nodes(), 1)
	require.Empty(t, deps.store.Edges())
}

func TestAddQuestionNodeUnderParent(t *testing.T) {
	eng, deps := newTestEngine(t)
	convID := uuid.New()
	parentMsg := uuid.New()
	parent := persistedNode("parent", graph.KindAnswer, "some answer", parentMsg, convID)
	parent.Position = graph.Position{X: 50, Y: 60}
	deps.store.AddNode(parent)

	node, ok := eng.AddQuestionNode("parent")
	require.True(t, ok)
	require.Equal(t, graph.Position{X: 250, Y: 160}, node.Position)
	require.Equal(t, parentMsg, node.Message.ParentID.UUID)
	require.True(t, node.Message.ParentID.Valid)
	require.Equal(t, convID, node.Message.ConversationID.UUID)
	require.False(t, node.Message.ID.Valid)

	require.Len(t, deps.store.Edges(), 1)
	edge := deps.store.Edges()[0]
	require.Equal(t, "parent", edge.Source)
	require.Equal(t, node.ID, edge.Target)
}

func TestAddQuestionNodeUnderParentSchedulesLayout(t *testing.T) {
	deps := &testDeps{
		convs:   &mockConversationRepo{},
		msgs:    &mockMessageRepo{},
		gateway: &mockGateway{},
		titles:  &mockTitleEnqueuer{},
		store:   graph.NewStore(),
	}
	coord := layout.NewCoordinator(deps.store, layout.Layered{}, 10*time.Millisecond, layout.DefaultOptions())
	eng := New(uuid.New(), deps.store, coord, deps.convs, deps.msgs, deps.gateway, deps.titles)

	parent := persistedNode("parent", graph.KindAnswer, "answer", uuid.New(), uuid.New())
	parent.Position = graph.Position{X: 50, Y: 60}
	deps.store.AddNode(parent)

	node, ok := eng.AddQuestionNode("parent")
	require.True(t, ok)

	// the edge collection changed, so a layout pass must land on its own
	require.Eventually(t, func() bool {
		child, ok := deps.store.Node(node.ID)
		return ok && child.Position == graph.Position{X: 0, Y: 100}
	}, time.Second, 5*time.Millisecond)

	got, _ := deps.store.Node("parent")
	require.Equal(t, graph.Position{X: 0, Y: 0}, got.Position)
}

func TestAddQuestionNodeUnknownParent(t *testing.T) {
	eng, deps := newTestEngine(t)
	_, ok := eng.AddQuestionNode("ghost")
	require.False(t, ok)
	require.Empty(t, deps.store.Nodes())
}

func TestSubmitQuestionRoot(t *testing.T) {
	eng, deps := newTestEngine(t)
	node, ok := eng.AddQuestionNode("")
	require.True(t, ok)

	convID := uuid.New()
	questionID := uuid.New()
	answerID := uuid.New()

	deps.convs.On("Create", mock.Anything, mock.AnythingOfType("*models.Conversation")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Conversation).ID = convID
		}).Return(nil)
	deps.titles.On("EnqueueTitle", mock.Anything, convID).Return(nil)

	deps.msgs.On("CreateMessage", mock.Anything, "What is 2+2?", models.RoleUser, convID, (*uuid.UUID)(nil)).
		Return(&models.Message{ID: questionID, ConversationID: convID, Role: models.RoleUser, Content: "What is 2+2?"}, nil)
	deps.gateway.On("Complete", mock.Anything, []completion.Message{
		{Role: completion.RoleUser, Content: "What is 2+2?"},
	}).Return("2+2 equals 4.", nil)
	deps.msgs.On("CreateMessage", mock.Anything, "2+2 equals 4.", models.RoleAssistant, convID, &questionID).
		Return(&models.Message{ID: answerID, ConversationID: convID, Role: models.RoleAssistant, Content: "2+2 equals 4."}, nil)

	require.NoError(t, eng.SubmitQuestion(context.Background(), node.ID, "What is 2+2?"))

	question, ok := deps.store.Node(node.ID)
	require.True(t, ok)
	require.Equal(t, "What is 2+2?", question.Content)
	require.Equal(t, questionID, question.Message.ID.UUID)
	require.Equal(t, convID, question.Message.ConversationID.UUID)

	nodes := deps.store.Nodes()
	require.Len(t, nodes, 2)
	var answer graph.Node
	for _, n := range nodes {
		if n.Kind == graph.KindAnswer {
			answer = n
		}
	}
	require.Equal(t, "2+2 equals 4.", answer.Content)
	require.Equal(t, answerID, answer.Message.ID.UUID)
	require.Equal(t, questionID, answer.Message.ParentID.UUID)
	require.Equal(t, question.Position.X+200, answer.Position.X)
	require.Equal(t, question.Position.Y, answer.Position.Y)

	require.Len(t, deps.store.Edges(), 1)
	require.Equal(t, node.ID, deps.store.Edges()[0].Source)
	require.Equal(t, answer.ID, deps.store.Edges()[0].Target)

	deps.convs.AssertExpectations(t)
	deps.msgs.AssertExpectations(t)
	deps.gateway.AssertExpectations(t)
	deps.titles.AssertExpectations(t)
}

func TestSubmitQuestionBranchCarriesAncestorContext(t *testing.T) {
	eng, deps := newTestEngine(t)
	convID := uuid.New()
	rootID := uuid.New()
	parentID := uuid.New()

	parent := persistedNode("parent", graph.KindAnswer, "Paris is the capital.", parentID, convID)
	deps.store.AddNode(parent)

	node, ok := eng.AddQuestionNode("parent")
	require.True(t, ok)

	// ancestor chain comes back immediate-parent-first
	deps.msgs.On("GetParentMessages", mock.Anything, parentID).Return([]models.Message{
		{ID: rootID, Role: models.RoleUser, Content: "What is the capital of France?"},
	}, nil)
	deps.msgs.On("GetByID", mock.Anything, parentID, mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) {
			*args.Get(2).(*models.Message) = models.Message{ID: parentID, Role: models.RoleAssistant, Content: "Paris is the capital."}
		}).Return(nil)

	questionID := uuid.New()
	deps.msgs.On("CreateMessage", mock.Anything, "How many people live there?", models.RoleUser, convID, &parentID).
		Return(&models.Message{ID: questionID, ConversationID: convID, Role: models.RoleUser}, nil)

	// the model sees the full chain oldest-first, ending with the new question
	deps.gateway.On("Complete", mock.Anything, []completion.Message{
		{Role: completion.RoleUser, Content: "What is the capital of France?"},
		{Role: completion.RoleAssistant, Content: "Paris is the capital."},
		{Role: completion.RoleUser, Content: "How many people live there?"},
	}).Return("About two million.", nil)

	deps.msgs.On("CreateMessage", mock.Anything, "About two million.", models.RoleAssistant, convID, &questionID).
		Return(&models.Message{ID: uuid.New(), ConversationID: convID, Role: models.RoleAssistant}, nil)

	require.NoError(t, eng.SubmitQuestion(context.Background(), node.ID, "How many people live there?"))

	deps.msgs.AssertExpectations(t)
	deps.gateway.AssertExpectations(t)
	// no new conversation when the branch already belongs to one
	deps.convs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmitQuestionVanishedNodeIsNoop(t *testing.T) {
	eng, deps := newTestEngine(t)
	require.NoError(t, eng.SubmitQuestion(context.Background(), "gone", "hello"))
	deps.convs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	deps.gateway.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestEditAndCascadeRegeneratesDirectChildrenOnly(t *testing.T) {
	eng, deps := newTestEngine(t)
	convID := uuid.New()
	qID := uuid.New()
	a1ID := uuid.New()
	gID := uuid.New()

	deps.store.AddNode(persistedNode("q", graph.KindQuestion, "old question", qID, convID))
	deps.store.AddNode(persistedNode("a1", graph.KindAnswer, "old answer", a1ID, convID))
	draft := graph.Node{ID: "a2", Kind: graph.KindAnswer, Content: "unsaved"}
	deps.store.AddNode(draft)
	deps.store.AddNode(persistedNode("g", graph.KindQuestion, "grandchild", gID, convID))
	deps.store.AddEdge(graph.Edge{ID: "e1", Source: "q", Target: "a1"})
	deps.store.AddEdge(graph.Edge{ID: "e2", Source: "q", Target: "a2"})
	deps.store.AddEdge(graph.Edge{ID: "e3", Source: "a1", Target: "g"})

	deps.msgs.On("UpdateContent", mock.Anything, qID, "new question", models.RoleUser).
		Return(&models.Message{ID: qID}, nil)
	deps.gateway.On("Complete", mock.Anything, []completion.Message{
		{Role: completion.RoleUser, Content: "new question"},
	}).Return("new answer", nil)
	deps.msgs.On("UpdateContent", mock.Anything, a1ID, "new answer", models.RoleAssistant).
		Return(&models.Message{ID: a1ID}, nil)

	require.NoError(t, eng.EditAndCascade(context.Background(), "q", "new question"))

	q, _ := deps.store.Node("q")
	require.Equal(t, "new question", q.Content)
	a1, _ := deps.store.Node("a1")
	require.Equal(t, "new answer", a1.Content)

	// unpersisted children and deeper descendants stay untouched
	a2, _ := deps.store.Node("a2")
	require.Equal(t, "unsaved", a2.Content)
	g, _ := deps.store.Node("g")
	require.Equal(t, "grandchild", g.Content)

	deps.msgs.AssertExpectations(t)
	deps.msgs.AssertNotCalled(t, "UpdateContent", mock.Anything, gID, mock.Anything, mock.Anything)
}

func TestRefreshOverwritesContent(t *testing.T) {
	eng, deps := newTestEngine(t)
	convID := uuid.New()
	msgID := uuid.New()
	deps.store.AddNode(persistedNode("n", graph.KindAnswer, "stale answer", msgID, convID))

	deps.gateway.On("Complete", mock.Anything, []completion.Message{
		{Role: completion.RoleUser, Content: "stale answer"},
	}).Return("fresh answer", nil)
	deps.msgs.On("UpdateContent", mock.Anything, msgID, "fresh answer", models.RoleAssistant).
		Return(&models.Message{ID: msgID}, nil)

	require.NoError(t, eng.Refresh(context.Background(), "n"))

	n, _ := deps.store.Node("n")
	require.Equal(t, "fresh answer", n.Content)
	deps.msgs.AssertExpectations(t)
}

func TestRefreshEmptyNodeIsNoop(t *testing.T) {
	eng, deps := newTestEngine(t)
	deps.store.AddNode(graph.Node{ID: "empty", Kind: graph.KindQuestion})

	require.NoError(t, eng.Refresh(context.Background(), "empty"))
	deps.gateway.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestDeleteNodeRemovesSubtree(t *testing.T) {
	eng, deps := newTestEngine(t)
	convID := uuid.New()
	rootMsg := uuid.New()

	// five node chain n1 -> n2 -> n3 -> n4 -> n5
	ids := []string{"n1", "n2", "n3", "n4", "n5"}
	deps.store.AddNode(persistedNode("n1", graph.KindQuestion, "n1", rootMsg, convID))
	for i := 1; i < len(ids); i++ {
		deps.store.AddNode(persistedNode(ids[i], graph.KindAnswer, ids[i], uuid.New(), convID))
		deps.store.AddEdge(graph.Edge{ID: "e" + ids[i], Source: ids[i-1], Target: ids[i]})
	}
	// a survivor outside the subtree
	deps.store.AddNode(graph.Node{ID: "other"})

	deps.msgs.On("DeleteWithChildren", mock.Anything, rootMsg).Return(nil)

	require.NoError(t, eng.DeleteNode(context.Background(), "n1"))

	require.Len(t, deps.store.Nodes(), 1)
	require.Equal(t, "other", deps.store.Nodes()[0].ID)
	require.Empty(t, deps.store.Edges())

	// one recursive delete covers the whole persisted subtree
	deps.msgs.AssertNumberOfCalls(t, "DeleteWithChildren", 1)
}

func TestDeleteNodeDraftSkipsPersistence(t *testing.T) {
	eng, deps := newTestEngine(t)
	deps.store.AddNode(graph.Node{ID: "draft", Kind: graph.KindQuestion})

	require.NoError(t, eng.DeleteNode(context.Background(), "draft"))
	require.Empty(t, deps.store.Nodes())
	deps.msgs.AssertNotCalled(t, "DeleteWithChildren", mock.Anything, mock.Anything)
}

func TestDeleteAllClearsCanvasAfterPersistence(t *testing.T) {
	eng, deps := newTestEngine(t)
	convID := uuid.New()
	m1 := uuid.New()
	m2 := uuid.New()
	deps.store.AddNode(persistedNode("a", graph.KindQuestion, "a", m1, convID))
	deps.store.AddNode(persistedNode("b", graph.KindAnswer, "b", m2, convID))
	deps.store.AddNode(graph.Node{ID: "draft"})

	deps.msgs.On("DeleteWithChildren", mock.Anything, m1).Return(nil)
	deps.msgs.On("DeleteWithChildren", mock.Anything, m2).Return(nil)

	require.NoError(t, eng.DeleteAll(context.Background()))
	require.Empty(t, deps.store.Nodes())
	deps.msgs.AssertExpectations(t)
}

func TestDeleteAllKeepsCanvasOnFailure(t *testing.T) {
	eng, deps := newTestEngine(t)
	convID := uuid.New()
	m1 := uuid.New()
	deps.store.AddNode(persistedNode("a", graph.KindQuestion, "a", m1, convID))

	deps.msgs.On("DeleteWithChildren", mock.Anything, m1).Return(context.DeadlineExceeded)

	require.Error(t, eng.DeleteAll(context.Background()))
	require.Len(t, deps.store.Nodes(), 1)
}

func TestCollectSelected(t *testing.T) {
	eng, deps := newTestEngine(t)
	deps.store.AddNode(graph.Node{ID: "q1", Kind: graph.KindQuestion, Content: "Q1", Selected: true, Selectable: true})
	deps.store.AddNode(graph.Node{ID: "a1", Kind: graph.KindAnswer, Content: "A1", Selectable: true})
	deps.store.AddNode(graph.Node{ID: "a2", Kind: graph.KindAnswer, Content: "A2", Selected: true, Selectable: true})

	got := eng.CollectSelected()
	require.Equal(t, "question: Q1\nanswer: A2", got)

	// export leaves selection mode
	for _, n := range deps.store.Nodes() {
		require.False(t, n.Selectable)
	}
}

func TestCollectSelectedEmpty(t *testing.T) {
	eng, _ := newTestEngine(t)
	require.Equal(t, "", eng.CollectSelected())
}

func TestToggleNodeSelected(t *testing.T) {
	eng, deps := newTestEngine(t)
	deps.store.AddNode(graph.Node{ID: "n", Selectable: true})

	eng.ToggleNodeSelected("n", true)
	n, _ := deps.store.Node("n")
	require.True(t, n.Selected)

	eng.ToggleNodeSelected("n", false)
	n, _ = deps.store.Node("n")
	require.False(t, n.Selected)
}

func TestLoadHydratesForest(t *testing.T) {
	eng, deps := newTestEngine(t)
	convID := uuid.New()
	rootID := uuid.New()
	childID := uuid.New()

	deps.convs.On("ListByUser", mock.Anything, mock.Anything, true).Return([]models.Conversation{
		{
			ID: convID,
			Messages: []models.Message{
				{ID: rootID, ConversationID: convID, Role: models.RoleUser, Content: "root question"},
				{ID: childID, ConversationID: convID, ParentID: &rootID, Role: models.RoleAssistant, Content: "answer"},
			},
		},
	}, nil)

	require.NoError(t, eng.Load(context.Background()))

	require.Len(t, deps.store.Nodes(), 2)
	root, ok := deps.store.Node("msg-" + rootID.String())
	require.True(t, ok)
	require.Equal(t, graph.KindQuestion, root.Kind)
	require.Equal(t, "root question", root.Content)

	require.Len(t, deps.store.Edges(), 1)
	edge := deps.store.Edges()[0]
	require.Equal(t, "msg-"+rootID.String(), edge.Source)
	require.Equal(t, "msg-"+childID.String(), edge.Target)
}
