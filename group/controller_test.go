package group

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/models"
	"chatsync/repository"
	"chatsync/store"
)

var (
	an   = models.UserRef{ID: "uA", Name: "An"}
	binh = models.UserRef{ID: "uB", Name: "Binh"}
	chi  = models.UserRef{ID: "uC", Name: "Chi"}
)

// fakeRepo answers every mutation with the scripted error for its op.
type fakeRepo struct {
	errs  map[string]error
	calls []string
}

func newRepo() *fakeRepo {
	return &fakeRepo{errs: make(map[string]error)}
}

func (f *fakeRepo) call(op string) error {
	f.calls = append(f.calls, op)
	return f.errs[op]
}

func (f *fakeRepo) ListConversations(context.Context) ([]models.Conversation, error) {
	return nil, nil
}
func (f *fakeRepo) GetUnreadCount(context.Context, string) (int, error) { return 0, nil }
func (f *fakeRepo) GetTotalUnread(context.Context) (int, error)         { return 0, nil }
func (f *fakeRepo) CreateConversation(ctx context.Context, p repository.CreateConversationParams) (*models.Conversation, error) {
	if err := f.call("create"); err != nil {
		return nil, err
	}
	conv := &models.Conversation{
		ID:   "created",
		Kind: p.Kind,
		Name: p.Name,
		Members: []models.Membership{
			{UserID: an.ID, Role: models.RoleAdmin, Name: an.Name},
		},
	}
	for _, id := range p.MemberIDs {
		conv.Members = append(conv.Members, models.Membership{UserID: id, Role: models.RoleMember})
	}
	return conv, nil
}
func (f *fakeRepo) EnsurePrivate(ctx context.Context, other string) (*models.Conversation, error) {
	if err := f.call("ensure_private"); err != nil {
		return nil, err
	}
	return &models.Conversation{
		ID:   "priv-" + other,
		Kind: models.KindPrivate,
		Members: []models.Membership{
			{UserID: an.ID, Role: models.RoleMember, Name: an.Name},
			{UserID: other, Role: models.RoleMember},
		},
	}, nil
}
func (f *fakeRepo) RenameGroup(context.Context, string, string) error { return f.call("rename") }
func (f *fakeRepo) UpdateGroupAvatar(ctx context.Context, id, img string) (string, error) {
	if err := f.call("avatar"); err != nil {
		return "", err
	}
	return "https://cdn.example/" + img, nil
}
func (f *fakeRepo) AddMembers(context.Context, string, []string) error { return f.call("add") }
func (f *fakeRepo) RemoveMember(context.Context, string, string) error { return f.call("remove") }
func (f *fakeRepo) GrantAdmin(context.Context, string, string) error   { return f.call("grant") }
func (f *fakeRepo) LeaveGroup(context.Context, string) error           { return f.call("leave") }
func (f *fakeRepo) DissolveGroup(context.Context, string) error        { return f.call("dissolve") }
func (f *fakeRepo) DeleteHistory(context.Context, string) error        { return f.call("history") }
func (f *fakeRepo) MarkRead(context.Context, string) error             { return f.call("read") }

func groupConv() *models.Conversation {
	return &models.Conversation{
		ID:   "g1",
		Kind: models.KindGroup,
		Name: "study circle",
		Members: []models.Membership{
			{UserID: an.ID, Role: models.RoleAdmin, Name: an.Name},
			{UserID: binh.ID, Role: models.RoleMember, Name: binh.Name},
			{UserID: chi.ID, Role: models.RoleMember, Name: chi.Name},
		},
		LastMessage: &models.Message{
			ID:        "m0",
			Type:      models.ContentText,
			Content:   models.TextContent{Text: "hello"},
			CreatedAt: time.Now().Add(-time.Minute),
		},
	}
}

func setup(viewer models.UserRef) (*fakeRepo, *store.ConversationListStore, *Controller, *int) {
	repo := newRepo()
	st := store.NewConversationListStore(viewer.ID)
	st.Upsert(groupConv())
	resyncs := 0
	ctrl := NewController(repo, st, viewer, func() { resyncs++ })
	return repo, st, ctrl, &resyncs
}

func lastEvent(t *testing.T, st *store.ConversationListStore, id string) models.SystemEvent {
	t.Helper()
	conv, ok := st.Get(id)
	require.True(t, ok)
	require.NotNil(t, conv.LastMessage)
	ev, ok := conv.LastMessage.SystemEvent()
	require.True(t, ok)
	return ev
}

func TestRemoveMemberOptimistic(t *testing.T) {
	_, st, ctrl, _ := setup(an)

	require.NoError(t, ctrl.RemoveMember(context.Background(), "g1", binh))

	conv, _ := st.Get("g1")
	require.Len(t, conv.Members, 2)
	assert.Nil(t, conv.Member(binh.ID))
	assert.NotNil(t, conv.Member(an.ID))
	assert.NotNil(t, conv.Member(chi.ID))

	ev := lastEvent(t, st, "g1")
	assert.Equal(t, models.ActionMemberRemoved, ev.Action)
	assert.Equal(t, an.ID, ev.Actor.ID)
	require.Len(t, ev.Targets, 1)
	assert.Equal(t, binh.ID, ev.Targets[0].ID)
}

func TestRemoveMemberRollsBackOnFailure(t *testing.T) {
	repo, st, ctrl, _ := setup(an)
	repo.errs["remove"] = &repository.Error{Kind: repository.KindTransient, Op: "remove_member", Msg: "down"}

	before, _ := st.Get("g1")
	err := ctrl.RemoveMember(context.Background(), "g1", binh)
	require.Error(t, err)
	assert.True(t, repository.IsTransient(err))

	after, _ := st.Get("g1")
	assert.Equal(t, before, after)
}

func TestRemoveMemberPreconditions(t *testing.T) {
	_, _, ctrl, _ := setup(binh) // member, not admin
	err := ctrl.RemoveMember(context.Background(), "g1", chi)
	assert.True(t, repository.IsValidation(err))

	_, _, adminCtrl, _ := setup(an)
	err = adminCtrl.RemoveMember(context.Background(), "g1", an)
	assert.True(t, repository.IsValidation(err))
}

func TestNotFoundForcesResync(t *testing.T) {
	repo, st, ctrl, resyncs := setup(an)
	repo.errs["remove"] = &repository.Error{Kind: repository.KindNotFound, Op: "remove_member", Msg: "gone"}

	before, _ := st.Get("g1")
	err := ctrl.RemoveMember(context.Background(), "g1", binh)
	require.True(t, repository.IsNotFound(err))
	after, _ := st.Get("g1")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, *resyncs)
}

func TestAddMembersFiltersExisting(t *testing.T) {
	repo, st, ctrl, _ := setup(binh)
	dung := models.UserRef{ID: "uD", Name: "Dung"}

	require.NoError(t, ctrl.AddMembers(context.Background(), "g1", []models.UserRef{chi, dung}))

	conv, _ := st.Get("g1")
	require.Len(t, conv.Members, 4)
	ev := lastEvent(t, st, "g1")
	assert.Equal(t, models.ActionMemberAdded, ev.Action)
	require.Len(t, ev.Targets, 1)
	assert.Equal(t, dung.ID, ev.Targets[0].ID)
	assert.Equal(t, []string{"add"}, repo.calls)
}

func TestAddMembersAllExistingIsValidation(t *testing.T) {
	repo, _, ctrl, _ := setup(an)
	err := ctrl.AddMembers(context.Background(), "g1", []models.UserRef{binh})
	assert.True(t, repository.IsValidation(err))
	assert.Empty(t, repo.calls)
}

func TestPromote(t *testing.T) {
	_, st, ctrl, _ := setup(an)
	require.NoError(t, ctrl.Promote(context.Background(), "g1", binh))

	conv, _ := st.Get("g1")
	role, _ := conv.RoleOf(binh.ID)
	assert.Equal(t, models.RoleAdmin, role)
	assert.Equal(t, 2, conv.AdminCount())

	ev := lastEvent(t, st, "g1")
	assert.Equal(t, models.ActionAdminGranted, ev.Action)
}

func TestRenameValidation(t *testing.T) {
	repo, _, ctrl, _ := setup(an)
	err := ctrl.Rename(context.Background(), "g1", "   ")
	assert.True(t, repository.IsValidation(err))
	assert.Empty(t, repo.calls)
}

func TestRenameOptimisticAndRollback(t *testing.T) {
	repo, st, ctrl, _ := setup(chi) // any member may rename
	require.NoError(t, ctrl.Rename(context.Background(), "g1", "  night owls "))
	conv, _ := st.Get("g1")
	assert.Equal(t, "night owls", conv.Name)
	ev := lastEvent(t, st, "g1")
	assert.Equal(t, models.ActionRenamed, ev.Action)
	assert.Equal(t, "night owls", ev.NewName)

	repo.errs["rename"] = &repository.Error{Kind: repository.KindAuthorization, Op: "rename", Msg: "nope"}
	before, _ := st.Get("g1")
	err := ctrl.Rename(context.Background(), "g1", "other")
	require.True(t, repository.IsAuthorization(err))
	after, _ := st.Get("g1")
	assert.Equal(t, before, after)
}

func TestUpdateAvatarReconcilesStoredURL(t *testing.T) {
	_, st, ctrl, _ := setup(binh)
	require.NoError(t, ctrl.UpdateAvatar(context.Background(), "g1", "selfie.png"))
	conv, _ := st.Get("g1")
	assert.Equal(t, "https://cdn.example/selfie.png", conv.Avatar)
	ev := lastEvent(t, st, "g1")
	assert.Equal(t, models.ActionAvatarUpdated, ev.Action)
}

func TestLeaveSoleAdminBlocked(t *testing.T) {
	repo, st, ctrl, _ := setup(an)
	err := ctrl.Leave(context.Background(), "g1")
	require.True(t, repository.IsValidation(err))
	assert.Empty(t, repo.calls)
	_, ok := st.Get("g1")
	assert.True(t, ok)
}

func TestLeaveAsMember(t *testing.T) {
	_, st, ctrl, _ := setup(binh)
	require.NoError(t, ctrl.Leave(context.Background(), "g1"))
	_, ok := st.Get("g1")
	assert.False(t, ok)
}

func TestLeaveRollbackRestoresConversation(t *testing.T) {
	repo, st, ctrl, _ := setup(binh)
	repo.errs["leave"] = &repository.Error{Kind: repository.KindTransient, Op: "leave_group", Msg: "down"}

	before, _ := st.Get("g1")
	err := ctrl.Leave(context.Background(), "g1")
	require.Error(t, err)
	after, ok := st.Get("g1")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestPromoteAndLeave(t *testing.T) {
	repo, st, ctrl, _ := setup(an)
	require.NoError(t, ctrl.PromoteAndLeave(context.Background(), "g1", chi))

	_, ok := st.Get("g1")
	assert.False(t, ok)
	assert.Equal(t, []string{"grant", "leave"}, repo.calls)
}

func TestPromoteAndLeaveRollsBackWhenGrantFails(t *testing.T) {
	repo, st, ctrl, _ := setup(an)
	repo.errs["grant"] = &repository.Error{Kind: repository.KindTransient, Op: "grant_admin", Msg: "down"}

	before, _ := st.Get("g1")
	err := ctrl.PromoteAndLeave(context.Background(), "g1", chi)
	require.Error(t, err)
	after, ok := st.Get("g1")
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"grant"}, repo.calls)
}

func TestDissolve(t *testing.T) {
	_, st, ctrl, _ := setup(an)
	require.NoError(t, ctrl.Dissolve(context.Background(), "g1"))
	_, ok := st.Get("g1")
	assert.False(t, ok)
}

func TestDissolveRequiresAdmin(t *testing.T) {
	_, st, ctrl, _ := setup(chi)
	err := ctrl.Dissolve(context.Background(), "g1")
	assert.True(t, repository.IsValidation(err))
	_, ok := st.Get("g1")
	assert.True(t, ok)
}

func TestDissolveRollback(t *testing.T) {
	repo, st, ctrl, _ := setup(an)
	repo.errs["dissolve"] = &repository.Error{Kind: repository.KindTransient, Op: "dissolve_group", Msg: "down"}

	before, _ := st.Get("g1")
	require.Error(t, ctrl.Dissolve(context.Background(), "g1"))
	after, ok := st.Get("g1")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestDeleteHistoryClearsPreview(t *testing.T) {
	_, st, ctrl, _ := setup(binh)
	require.NoError(t, ctrl.DeleteHistory(context.Background(), "g1"))
	conv, _ := st.Get("g1")
	assert.Nil(t, conv.LastMessage)
}

// Admin invariant: any sequence of operations that individually pass their
// preconditions leaves at least one admin in the group.
func TestAdminInvariantAcrossOperations(t *testing.T) {
	_, st, ctrl, _ := setup(an)
	ctx := context.Background()

	require.NoError(t, ctrl.AddMembers(ctx, "g1", []models.UserRef{{ID: "uD", Name: "Dung"}}))
	require.NoError(t, ctrl.Promote(ctx, "g1", binh))
	require.NoError(t, ctrl.RemoveMember(ctx, "g1", chi))

	conv, _ := st.Get("g1")
	assert.GreaterOrEqual(t, conv.AdminCount(), 1)

	// with a second admin in place the original admin may leave directly
	require.NoError(t, ctrl.Leave(ctx, "g1"))
	_, ok := st.Get("g1")
	assert.False(t, ok)
}

func TestCreateGroupValidations(t *testing.T) {
	repo, _, ctrl, _ := setup(an)
	_, err := ctrl.CreateGroup(context.Background(), " ", []models.UserRef{binh, chi})
	assert.True(t, repository.IsValidation(err))
	_, err = ctrl.CreateGroup(context.Background(), "ok", []models.UserRef{binh})
	assert.True(t, repository.IsValidation(err))
	assert.Empty(t, repo.calls)
}

func TestCreateGroupUpsertsResult(t *testing.T) {
	_, st, ctrl, _ := setup(an)
	conv, err := ctrl.CreateGroup(context.Background(), "new group", []models.UserRef{binh, chi})
	require.NoError(t, err)
	got, ok := st.Get(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "new group", got.Name)
	assert.Equal(t, 1, got.AdminCount())
}

func TestStartPrivate(t *testing.T) {
	_, st, ctrl, _ := setup(an)
	conv, err := ctrl.StartPrivate(context.Background(), "uZ")
	require.NoError(t, err)
	assert.Equal(t, models.KindPrivate, conv.Kind)
	_, ok := st.Get(conv.ID)
	assert.True(t, ok)

	_, err = ctrl.StartPrivate(context.Background(), an.ID)
	assert.True(t, repository.IsValidation(err))
}
