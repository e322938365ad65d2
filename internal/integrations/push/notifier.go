package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"

	"chat-translator/internal/domain"
)

// ErrNoConnection signals that the recipient has no live connection to
// deliver to. Callers decide whether that matters; for chat fan-out it is
// an expected state, not a failure.
var ErrNoConnection = errors.New("push: member has no live connection")

// managementAPI is the minimal API Gateway Management interface required by
// Notifier. Defined here for testability.
type managementAPI interface {
	PostToConnection(ctx context.Context, in *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// Notifier delivers push notifications over the WebSocket callback API.
// Delivery guarantees belong to the transport; this layer only hands the
// payload off, addressed by the recipient's connection id.
type Notifier struct {
	api managementAPI
}

// New creates a Notifier over the given management API.
func New(api managementAPI) (*Notifier, error) {
	if api == nil {
		return nil, errors.New("push: api must not be nil")
	}
	return &Notifier{api: api}, nil
}

// Publish sends one notification to its connection. A recipient without a
// connection id yields ErrNoConnection before any network call; a connection
// that has since closed (GoneException) is reported the same way, since both
// mean the same thing from the sender's perspective.
func (n *Notifier) Publish(ctx context.Context, notification domain.PushNotification) error {
	if strings.TrimSpace(notification.ConnectionID) == "" {
		return ErrNoConnection
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("push: marshal notification: %w", err)
	}

	_, err = n.api.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(notification.ConnectionID),
		Data:         payload,
	})
	if err != nil {
		var gone *types.GoneException
		if errors.As(err, &gone) {
			return fmt.Errorf("%w: connection %s is gone", ErrNoConnection, notification.ConnectionID)
		}
		return fmt.Errorf("push: post to connection: %w", err)
	}
	return nil
}
