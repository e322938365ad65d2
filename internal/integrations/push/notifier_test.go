package push

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/stretchr/testify/require"

	"chat-translator/internal/domain"
)

type fakeManagementAPI struct {
	err       error
	lastInput *apigatewaymanagementapi.PostToConnectionInput
	calls     int
}

func (f *fakeManagementAPI) PostToConnection(_ context.Context, in *apigatewaymanagementapi.PostToConnectionInput, _ ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	f.calls++
	f.lastInput = in
	return &apigatewaymanagementapi.PostToConnectionOutput{}, f.err
}

func sampleNotification(connectionID string) domain.PushNotification {
	return domain.PushNotification{
		Event:        "newMessage",
		ConnectionID: connectionID,
		GroupName:    "room1",
		TargetUserID: "bob",
		Message: domain.TranslatedMessage{
			OriginalText:   "Hello",
			TranslatedText: "Hola",
			SourceUserID:   "alice",
			TargetUserID:   "bob",
			SourceLanguage: "en",
			TargetLanguage: "es",
			GroupName:      "room1",
		},
	}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestPublish_HappyPath(t *testing.T) {
	api := &fakeManagementAPI{}
	n, err := New(api)
	require.NoError(t, err)

	err = n.Publish(context.Background(), sampleNotification("conn-1"))
	require.NoError(t, err)
	require.Equal(t, "conn-1", *api.lastInput.ConnectionId)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(api.lastInput.Data, &payload))
	require.Equal(t, "newMessage", payload["event"])
	require.Equal(t, "bob", payload["targetUserId"])
	msg := payload["message"].(map[string]any)
	require.Equal(t, "Hola", msg["translatedText"])
}

func TestPublish_BlankConnection_NoNetworkCall(t *testing.T) {
	api := &fakeManagementAPI{}
	n, err := New(api)
	require.NoError(t, err)

	err = n.Publish(context.Background(), sampleNotification("  "))
	require.ErrorIs(t, err, ErrNoConnection)
	require.Zero(t, api.calls)
}

func TestPublish_GoneConnection(t *testing.T) {
	api := &fakeManagementAPI{err: &types.GoneException{}}
	n, err := New(api)
	require.NoError(t, err)

	err = n.Publish(context.Background(), sampleNotification("conn-stale"))
	require.ErrorIs(t, err, ErrNoConnection)
}

func TestPublish_TransportError(t *testing.T) {
	api := &fakeManagementAPI{err: errors.New("throttled")}
	n, err := New(api)
	require.NoError(t, err)

	err = n.Publish(context.Background(), sampleNotification("conn-1"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoConnection)
	require.Contains(t, err.Error(), "post to connection")
}
