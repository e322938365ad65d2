package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"chat-translator/internal/domain"
	"chat-translator/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

var validate = validator.New()

// ChatUseCase is the dispatcher surface consumed by the HTTP handler.
type ChatUseCase interface {
	SendMessage(ctx context.Context, in usecase.MessageInput) (domain.TranslatedMessage, error)
	AddMember(ctx context.Context, in usecase.MemberInput) (domain.Member, error)
	RemoveMember(ctx context.Context, group, user string) error
	ListMembers(ctx context.Context, group string) (map[string]domain.Member, error)
	IsUserOnline(ctx context.Context, user string) (bool, error)
	IsUserNameAvailable(ctx context.Context, user string) (bool, error)
	DeleteUser(ctx context.Context, user string) error
	CreateProfile(ctx context.Context, in usecase.ProfileInput) (domain.Member, error)
	Languages(ctx context.Context) ([]byte, error)
	OnlineUsers(ctx context.Context) ([]domain.Member, error)
}

type Handler struct {
	uc ChatUseCase
}

func NewHandler(uc ChatUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

type sendMessageRequest struct {
	GroupName    string `json:"groupName" validate:"required"`
	SourceUserID string `json:"sourceUserId" validate:"required"`
	TargetUserID string `json:"targetUserId" validate:"required"`
	Text         string `json:"text" validate:"required"`
	Timestamp    string `json:"timestamp"`
}

type memberRequest struct {
	GroupName    string `json:"groupName" validate:"required"`
	UserID       string `json:"userId" validate:"required"`
	Language     string `json:"language" validate:"required"`
	ConnectionID string `json:"connectionId"`
}

type onlineResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type availabilityResponse struct {
	UserID    string `json:"userId"`
	Available bool   `json:"available"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handle routes one API Gateway proxy event to the matching operation.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	segments := splitPath(req.Path)

	switch {
	case req.HTTPMethod == http.MethodPost && matches(segments, "messages"):
		return h.sendMessage(ctx, corrID, req.Body)
	case req.HTTPMethod == http.MethodPost && matches(segments, "members"):
		return h.addMember(ctx, corrID, req.Body)
	case req.HTTPMethod == http.MethodDelete && matches(segments, "members", "*", "*"):
		return h.removeMember(ctx, corrID, segments[1], segments[2])
	case req.HTTPMethod == http.MethodGet && matches(segments, "members", "*"):
		return h.listMembers(ctx, corrID, segments[1])
	case req.HTTPMethod == http.MethodGet && matches(segments, "users", "online"):
		return h.onlineUsers(ctx, corrID)
	case req.HTTPMethod == http.MethodGet && matches(segments, "users", "*", "online"):
		return h.isUserOnline(ctx, corrID, segments[1])
	case req.HTTPMethod == http.MethodDelete && matches(segments, "users", "*"):
		return h.deleteUser(ctx, corrID, segments[1])
	case req.HTTPMethod == http.MethodPost && matches(segments, "profiles"):
		return h.createProfile(ctx, corrID, req.Body)
	case req.HTTPMethod == http.MethodGet && matches(segments, "languages"):
		return h.languages(ctx, corrID)
	case req.HTTPMethod == http.MethodGet && matches(segments, "usernames", "*", "available"):
		return h.isUserNameAvailable(ctx, corrID, segments[1])
	default:
		return respondJSON(http.StatusNotFound, corrID, errorResponse{
			Error:   string(usecase.ErrorNotFound),
			Message: "no such route",
		})
	}
}

func (h *Handler) sendMessage(ctx context.Context, corrID, body string) (events.APIGatewayProxyResponse, error) {
	var req sendMessageRequest
	if resp, bad := decodeBody(corrID, body, &req); bad {
		return resp, nil
	}

	ack, err := h.uc.SendMessage(ctx, usecase.MessageInput{
		GroupName:    req.GroupName,
		SourceUserID: req.SourceUserID,
		TargetUserID: req.TargetUserID,
		Text:         req.Text,
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		return respondError(corrID, err)
	}
	return respondJSON(http.StatusOK, corrID, ack)
}

func (h *Handler) addMember(ctx context.Context, corrID, body string) (events.APIGatewayProxyResponse, error) {
	var req memberRequest
	if resp, bad := decodeBody(corrID, body, &req); bad {
		return resp, nil
	}

	member, err := h.uc.AddMember(ctx, usecase.MemberInput{
		GroupName:    req.GroupName,
		UserID:       req.UserID,
		Language:     req.Language,
		ConnectionID: req.ConnectionID,
	})
	if err != nil {
		return respondError(corrID, err)
	}
	return respondJSON(http.StatusCreated, corrID, member)
}

func (h *Handler) removeMember(ctx context.Context, corrID, group, user string) (events.APIGatewayProxyResponse, error) {
	if err := h.uc.RemoveMember(ctx, group, user); err != nil {
		return respondError(corrID, err)
	}
	return respondJSON(http.StatusOK, corrID, messageResponse{Message: "member removed"})
}

func (h *Handler) listMembers(ctx context.Context, corrID, group string) (events.APIGatewayProxyResponse, error) {
	members, err := h.uc.ListMembers(ctx, group)
	if err != nil {
		return respondError(corrID, err)
	}
	return respondJSON(http.StatusOK, corrID, members)
}

func (h *Handler) isUserOnline(ctx context.Context, corrID, user string) (events.APIGatewayProxyResponse, error) {
	online, err := h.uc.IsUserOnline(ctx, user)
	if err != nil {
		return respondError(corrID, err)
	}
	return respondJSON(http.StatusOK, corrID, onlineResponse{UserID: user, Online: online})
}

func (h *Handler) isUserNameAvailable(ctx context.Context, corrID, user string) (events.APIGatewayProxyResponse, error) {
	available, err := h.uc.IsUserNameAvailable(ctx, user)
	if err != nil {
		return respondError(corrID, err)
	}
	return respondJSON(http.StatusOK, corrID, availabilityResponse{UserID: user, Available: available})
}

func (h *Handler) deleteUser(ctx context.Context, corrID, user string) (events.APIGatewayProxyResponse, error) {
	if err := h.uc.DeleteUser(ctx, user); err != nil {
		return respondError(corrID, err)
	}
	return respondJSON(http.StatusOK, corrID, messageResponse{Message: "user deleted"})
}

func (h *Handler) createProfile(ctx context.Context, corrID, body string) (events.APIGatewayProxyResponse, error) {
	var req memberRequest
	if resp, bad := decodeBody(corrID, body, &req); bad {
		return resp, nil
	}

	profile, err := h.uc.CreateProfile(ctx, usecase.ProfileInput{
		GroupName:    req.GroupName,
		UserID:       req.UserID,
		Language:     req.Language,
		ConnectionID: req.ConnectionID,
	})
	if err != nil {
		return respondError(corrID, err)
	}
	return respondJSON(http.StatusCreated, corrID, profile)
}

func (h *Handler) languages(ctx context.Context, corrID string) (events.APIGatewayProxyResponse, error) {
	raw, err := h.uc.Languages(ctx)
	if err != nil {
		return respondError(corrID, err)
	}
	// The catalog payload is passed through verbatim.
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    responseHeaders(corrID),
		Body:       string(raw),
	}, nil
}

func (h *Handler) onlineUsers(ctx context.Context, corrID string) (events.APIGatewayProxyResponse, error) {
	members, err := h.uc.OnlineUsers(ctx)
	if err != nil {
		return respondError(corrID, err)
	}
	return respondJSON(http.StatusOK, corrID, members)
}

// decodeBody parses and validates a JSON request body. The returned bool
// reports whether a bad-request response should be sent. Parse and
// validation failures are client errors, never internal ones.
func decodeBody(corrID, body string, v any) (events.APIGatewayProxyResponse, bool) {
	if strings.TrimSpace(body) == "" {
		resp, _ := respondJSON(http.StatusBadRequest, corrID, errorResponse{
			Error:   string(usecase.ErrorInvalidInput),
			Message: "request body must not be empty",
		})
		return resp, true
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		resp, _ := respondJSON(http.StatusBadRequest, corrID, errorResponse{
			Error:   string(usecase.ErrorInvalidInput),
			Message: "request body is not valid JSON",
		})
		return resp, true
	}
	if err := validate.Struct(v); err != nil {
		resp, _ := respondJSON(http.StatusBadRequest, corrID, errorResponse{
			Error:   string(usecase.ErrorInvalidInput),
			Message: "missing required fields",
		})
		return resp, true
	}
	return events.APIGatewayProxyResponse{}, false
}

func respondError(corrID string, err error) (events.APIGatewayProxyResponse, error) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		slog.Error("unexpected handler error", "err", err)
		return respondJSON(http.StatusInternalServerError, corrID, errorResponse{
			Error:   string(usecase.ErrorInternal),
			Message: "internal error",
		})
	}
	if ucErr.Code == usecase.ErrorInternal || ucErr.Code == usecase.ErrorUpstream {
		slog.Error("operation failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	return respondJSON(statusForCode(ucErr.Code), corrID, errorResponse{
		Error:   string(ucErr.Code),
		Message: ucErr.Reason,
	})
}

func statusForCode(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorConflict:
		return http.StatusConflict
	default:
		// Upstream translator failures surface as 500 like any other
		// server-side failure; the body still carries the distinct code.
		return http.StatusInternalServerError
	}
}

func respondJSON(status int, corrID string, body any) (events.APIGatewayProxyResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    responseHeaders(corrID),
			Body:       `{"error":"INTERNAL_ERROR","message":"encode response"}`,
		}, nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    responseHeaders(corrID),
		Body:       string(payload),
	}, nil
}

func responseHeaders(corrID string) map[string]string {
	return map[string]string{
		"Content-Type":    "application/json",
		correlationHeader: corrID,
	}
}

// correlationID returns the caller-supplied correlation id, matched
// case-insensitively, or a fresh one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return uuid.NewString()
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matches reports whether segments fit the pattern, where "*" accepts any
// single non-empty segment.
func matches(segments []string, pattern ...string) bool {
	if len(segments) != len(pattern) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if segments[i] != p {
			return false
		}
	}
	return true
}
