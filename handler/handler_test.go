package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"chat-translator/internal/domain"
	"chat-translator/internal/usecase"
)

type stubUseCase struct {
	ack        domain.TranslatedMessage
	member     domain.Member
	members    map[string]domain.Member
	online     bool
	available  bool
	languages  []byte
	allMembers []domain.Member
	err        error

	messageIn usecase.MessageInput
	memberIn  usecase.MemberInput
	profileIn usecase.ProfileInput
	group     string
	user      string
}

func (s *stubUseCase) SendMessage(_ context.Context, in usecase.MessageInput) (domain.TranslatedMessage, error) {
	s.messageIn = in
	return s.ack, s.err
}

func (s *stubUseCase) AddMember(_ context.Context, in usecase.MemberInput) (domain.Member, error) {
	s.memberIn = in
	return s.member, s.err
}

func (s *stubUseCase) RemoveMember(_ context.Context, group, user string) error {
	s.group, s.user = group, user
	return s.err
}

func (s *stubUseCase) ListMembers(_ context.Context, group string) (map[string]domain.Member, error) {
	s.group = group
	return s.members, s.err
}

func (s *stubUseCase) IsUserOnline(_ context.Context, user string) (bool, error) {
	s.user = user
	return s.online, s.err
}

func (s *stubUseCase) IsUserNameAvailable(_ context.Context, user string) (bool, error) {
	s.user = user
	return s.available, s.err
}

func (s *stubUseCase) DeleteUser(_ context.Context, user string) error {
	s.user = user
	return s.err
}

func (s *stubUseCase) CreateProfile(_ context.Context, in usecase.ProfileInput) (domain.Member, error) {
	s.profileIn = in
	return s.member, s.err
}

func (s *stubUseCase) Languages(_ context.Context) ([]byte, error) {
	return s.languages, s.err
}

func (s *stubUseCase) OnlineUsers(_ context.Context) ([]domain.Member, error) {
	return s.allMembers, s.err
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func mustHandler(t *testing.T, uc ChatUseCase) *Handler {
	t.Helper()
	h, err := NewHandler(uc)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_SendMessage_HappyPath(t *testing.T) {
	uc := &stubUseCase{ack: domain.TranslatedMessage{
		OriginalText:   "Hello",
		TranslatedText: "Hola",
		SourceUserID:   "alice",
		TargetUserID:   "bob",
		SourceLanguage: "en",
		TargetLanguage: "es",
		GroupName:      "room1",
	}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/messages",
		`{"groupName":"room1","sourceUserId":"alice","targetUserId":"bob","text":"Hello","timestamp":"2026-03-01T12:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Hello", uc.messageIn.Text)
	require.Equal(t, "2026-03-01T12:00:00Z", uc.messageIn.Timestamp)

	out := parseBody[domain.TranslatedMessage](t, resp.Body)
	require.Equal(t, "Hola", out.TranslatedText)
	require.Equal(t, "es", out.TargetLanguage)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_SendMessage_EmptyBody(t *testing.T) {
	uc := &stubUseCase{}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/messages", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, uc.messageIn.GroupName, "use case must not be reached")
}

func TestHandle_SendMessage_InvalidJSON(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/messages", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
}

func TestHandle_SendMessage_MissingFields(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/messages", `{"groupName":"room1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "text_required"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "target_not_in_group"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "conflict", err: &usecase.Error{Code: usecase.ErrorConflict, Reason: "member_exists"}, status: http.StatusConflict, code: string(usecase.ErrorConflict)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "translate_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "directory_list_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{err: tc.err}
			h := mustHandler(t, uc)

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/messages",
				`{"groupName":"room1","sourceUserId":"alice","targetUserId":"bob","text":"Hello"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.NotEmpty(t, out.Message)
		})
	}
}

func TestHandle_AddMember_Created(t *testing.T) {
	uc := &stubUseCase{member: domain.Member{GroupName: "room1", UserID: "alice", Language: "en"}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/members",
		`{"groupName":"room1","userId":"alice","language":"en","connectionId":"conn-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "conn-1", uc.memberIn.ConnectionID)

	out := parseBody[domain.Member](t, resp.Body)
	require.Equal(t, "alice", out.UserID)
}

func TestHandle_AddMember_Conflict(t *testing.T) {
	uc := &stubUseCase{err: &usecase.Error{Code: usecase.ErrorConflict, Reason: "member_exists"}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/members",
		`{"groupName":"room1","userId":"alice","language":"en"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandle_RemoveMember(t *testing.T) {
	uc := &stubUseCase{}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodDelete, "/members/room1/alice", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "room1", uc.group)
	require.Equal(t, "alice", uc.user)
}

func TestHandle_RemoveMember_NotFound(t *testing.T) {
	uc := &stubUseCase{err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "member_not_found"}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodDelete, "/members/room1/ghost", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_ListMembers(t *testing.T) {
	uc := &stubUseCase{members: map[string]domain.Member{
		"alice": {GroupName: "room1", UserID: "alice", Language: "en"},
	}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/members/room1", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[map[string]domain.Member](t, resp.Body)
	require.Equal(t, "en", out["alice"].Language)
}

func TestHandle_IsUserOnline(t *testing.T) {
	uc := &stubUseCase{online: true}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/users/alice/online", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "alice", uc.user)

	out := parseBody[onlineResponse](t, resp.Body)
	require.True(t, out.Online)
}

func TestHandle_OnlineUsers_ListedBeforeUserRoute(t *testing.T) {
	uc := &stubUseCase{allMembers: []domain.Member{{GroupName: "room1", UserID: "alice"}}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/users/online", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, uc.user, "must hit the listing route, not the per-user one")

	out := parseBody[[]domain.Member](t, resp.Body)
	require.Len(t, out, 1)
}

func TestHandle_DeleteUser(t *testing.T) {
	uc := &stubUseCase{}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodDelete, "/users/alice", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "alice", uc.user)
}

func TestHandle_CreateProfile_Created(t *testing.T) {
	uc := &stubUseCase{member: domain.Member{GroupName: "alice", UserID: "alice", Language: "en"}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/profiles",
		`{"groupName":"alice","userId":"alice","language":"en"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "alice", uc.profileIn.UserID)
}

func TestHandle_Languages_Passthrough(t *testing.T) {
	uc := &stubUseCase{languages: []byte(`{"translation":{"en":{"name":"English"}}}`)}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/languages", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"translation":{"en":{"name":"English"}}}`, resp.Body)
}

func TestHandle_UserNameAvailable(t *testing.T) {
	uc := &stubUseCase{available: true}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/usernames/carol/available", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[availabilityResponse](t, resp.Body)
	require.True(t, out.Available)
	require.Equal(t, "carol", out.UserID)
}

func TestHandle_UnknownRoute(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubUseCase{online: true}
	h := mustHandler(t, uc)

	event := makeEvent(http.MethodGet, "/users/alice/online", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
