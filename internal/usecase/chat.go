package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"chat-translator/internal/domain"
	"chat-translator/internal/integrations/push"
	"chat-translator/internal/repository"
)

const (
	minUserNameLen = 2
	maxUserNameLen = 50

	eventNewMessage = "newMessage"
)

type Directory interface {
	Add(ctx context.Context, m domain.Member) error
	Remove(ctx context.Context, group, user string) error
	Get(ctx context.Context, group, user string) (domain.Member, bool, error)
	ListGroup(ctx context.Context, group string) ([]domain.Member, error)
	IsUserOnline(ctx context.Context, user string) (bool, error)
	IsUserNameAvailable(ctx context.Context, user string) (bool, error)
	DeleteUser(ctx context.Context, user string) error
	ListAll(ctx context.Context) ([]domain.Member, error)
}

type Translator interface {
	Languages(ctx context.Context) ([]byte, error)
	Translate(ctx context.Context, text, from, to string) ([]byte, error)
}

type Notifier interface {
	Publish(ctx context.Context, notification domain.PushNotification) error
}

// ChatService orchestrates every user-facing operation: each is a short
// validation pipeline followed by at most one directory call and at most one
// translator call.
type ChatService struct {
	directory  Directory
	translator Translator
	notifier   Notifier
	logger     *slog.Logger
}

type MessageInput struct {
	GroupName    string
	SourceUserID string
	TargetUserID string
	Text         string
	Timestamp    string
}

type MemberInput struct {
	GroupName    string
	UserID       string
	Language     string
	ConnectionID string
}

type ProfileInput struct {
	GroupName    string
	UserID       string
	Language     string
	ConnectionID string
}

func NewChatService(d Directory, t Translator, n Notifier, logger *slog.Logger) (*ChatService, error) {
	if d == nil {
		return nil, errors.New("usecase: directory must not be nil")
	}
	if t == nil {
		return nil, errors.New("usecase: translator must not be nil")
	}
	if n == nil {
		return nil, errors.New("usecase: notifier must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{directory: d, translator: t, notifier: n, logger: logger}, nil
}

// translationPayload is the single place the remote translation schema is
// interpreted; the translator client hands the body over verbatim.
type translationPayload []struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

func translatedText(raw []byte) (string, error) {
	var payload translationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode translation payload: %w", err)
	}
	if len(payload) == 0 || len(payload[0].Translations) == 0 {
		return "", errors.New("translation payload has no translations")
	}
	return payload[0].Translations[0].Text, nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// SendMessage resolves both participants' languages, translates the text
// when they differ, and pushes the result to the recipient's live
// connection. The returned acknowledgment always reflects what was (or
// would have been) delivered.
func (s *ChatService) SendMessage(ctx context.Context, in MessageInput) (domain.TranslatedMessage, error) {
	switch {
	case blank(in.GroupName):
		return domain.TranslatedMessage{}, newError(ErrorInvalidInput, "group_name_required", nil)
	case blank(in.SourceUserID):
		return domain.TranslatedMessage{}, newError(ErrorInvalidInput, "source_user_required", nil)
	case blank(in.TargetUserID):
		return domain.TranslatedMessage{}, newError(ErrorInvalidInput, "target_user_required", nil)
	case blank(in.Text):
		return domain.TranslatedMessage{}, newError(ErrorInvalidInput, "text_required", nil)
	}

	members, err := s.directory.ListGroup(ctx, in.GroupName)
	if err != nil {
		return domain.TranslatedMessage{}, newError(ErrorInternal, "directory_list_error", err)
	}
	if len(members) == 0 {
		return domain.TranslatedMessage{}, newError(ErrorNotFound, "no_members_in_group", nil)
	}

	byUser := lo.KeyBy(members, func(m domain.Member) string { return m.UserID })
	source, ok := byUser[in.SourceUserID]
	if !ok {
		return domain.TranslatedMessage{}, newError(ErrorNotFound, "source_not_in_group", nil)
	}
	target, ok := byUser[in.TargetUserID]
	if !ok {
		return domain.TranslatedMessage{}, newError(ErrorNotFound, "target_not_in_group", nil)
	}

	// Equal languages skip the remote call entirely and keep the text
	// byte-for-byte.
	text := in.Text
	if source.Language != target.Language {
		raw, err := s.translator.Translate(ctx, in.Text, source.Language, target.Language)
		if err != nil {
			return domain.TranslatedMessage{}, newError(ErrorUpstream, "translate_error", err)
		}
		text, err = translatedText(raw)
		if err != nil {
			return domain.TranslatedMessage{}, newError(ErrorUpstream, "translator_malformed_response", err)
		}
	}

	ack := domain.TranslatedMessage{
		OriginalText:   in.Text,
		TranslatedText: text,
		SourceUserID:   in.SourceUserID,
		TargetUserID:   in.TargetUserID,
		SourceLanguage: source.Language,
		TargetLanguage: target.Language,
		GroupName:      in.GroupName,
		Timestamp:      in.Timestamp,
	}

	// Delivery guarantees belong to the transport; a push failure must not
	// fail the acknowledgment already earned above.
	pushErr := s.notifier.Publish(ctx, domain.PushNotification{
		Event:        eventNewMessage,
		ConnectionID: target.ConnectionID,
		GroupName:    in.GroupName,
		TargetUserID: in.TargetUserID,
		Message:      ack,
	})
	if pushErr != nil && !errors.Is(pushErr, push.ErrNoConnection) {
		s.logger.Warn("push delivery failed",
			"group", in.GroupName, "target", in.TargetUserID, "err", pushErr)
	}

	return ack, nil
}

// AddMember joins a user to a group. The list pre-check only buys a
// friendlier conflict answer; the directory's conditional insert is the
// real duplicate guard under concurrent requests.
func (s *ChatService) AddMember(ctx context.Context, in MemberInput) (domain.Member, error) {
	switch {
	case blank(in.GroupName):
		return domain.Member{}, newError(ErrorInvalidInput, "group_name_required", nil)
	case blank(in.UserID):
		return domain.Member{}, newError(ErrorInvalidInput, "user_id_required", nil)
	case blank(in.Language):
		return domain.Member{}, newError(ErrorInvalidInput, "language_required", nil)
	}

	members, err := s.directory.ListGroup(ctx, in.GroupName)
	if err != nil {
		return domain.Member{}, newError(ErrorInternal, "directory_list_error", err)
	}
	if lo.SomeBy(members, func(m domain.Member) bool { return m.UserID == in.UserID }) {
		return domain.Member{}, newError(ErrorConflict, "member_exists", nil)
	}

	member := domain.Member{
		GroupName:    in.GroupName,
		UserID:       in.UserID,
		Language:     in.Language,
		ConnectionID: in.ConnectionID,
	}
	if err := s.directory.Add(ctx, member); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return domain.Member{}, newError(ErrorConflict, "member_exists", err)
		case errors.Is(err, repository.ErrInvalidArgument):
			return domain.Member{}, newError(ErrorInvalidInput, "invalid_member_keys", err)
		default:
			return domain.Member{}, newError(ErrorInternal, "directory_add_error", err)
		}
	}
	return member, nil
}

// RemoveMember removes a user from a group.
func (s *ChatService) RemoveMember(ctx context.Context, group, user string) error {
	if blank(group) {
		return newError(ErrorInvalidInput, "group_name_required", nil)
	}
	if blank(user) {
		return newError(ErrorInvalidInput, "user_id_required", nil)
	}

	if err := s.directory.Remove(ctx, group, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return newError(ErrorNotFound, "member_not_found", err)
		case errors.Is(err, repository.ErrInvalidArgument):
			return newError(ErrorInvalidInput, "invalid_member_keys", err)
		default:
			return newError(ErrorInternal, "directory_remove_error", err)
		}
	}
	return nil
}

// ListMembers returns every member of a group keyed by user id. A group
// with no members is reported as not found: groups are implicit here,
// defined only by their membership records.
func (s *ChatService) ListMembers(ctx context.Context, group string) (map[string]domain.Member, error) {
	if blank(group) {
		return nil, newError(ErrorInvalidInput, "group_name_required", nil)
	}

	members, err := s.directory.ListGroup(ctx, group)
	if err != nil {
		return nil, newError(ErrorInternal, "directory_list_error", err)
	}
	if len(members) == 0 {
		return nil, newError(ErrorNotFound, "no_members_in_group", nil)
	}
	return lo.KeyBy(members, func(m domain.Member) string { return m.UserID }), nil
}

// IsUserOnline reports whether the user holds any membership record.
func (s *ChatService) IsUserOnline(ctx context.Context, user string) (bool, error) {
	if blank(user) {
		return false, newError(ErrorInvalidInput, "user_id_required", nil)
	}
	online, err := s.directory.IsUserOnline(ctx, user)
	if err != nil {
		return false, newError(ErrorInternal, "directory_online_error", err)
	}
	return online, nil
}

// IsUserNameAvailable reports whether the user name is unclaimed anywhere
// in the directory. Names must be between 2 and 50 characters.
func (s *ChatService) IsUserNameAvailable(ctx context.Context, user string) (bool, error) {
	if blank(user) {
		return false, newError(ErrorInvalidInput, "user_id_required", nil)
	}
	if n := len(user); n < minUserNameLen || n > maxUserNameLen {
		return false, newError(ErrorInvalidInput, "user_name_length", nil)
	}
	available, err := s.directory.IsUserNameAvailable(ctx, user)
	if err != nil {
		return false, newError(ErrorInternal, "directory_availability_error", err)
	}
	return available, nil
}

// DeleteUser removes every membership record for the user across all
// groups. A user with no records deletes cleanly.
func (s *ChatService) DeleteUser(ctx context.Context, user string) error {
	if blank(user) {
		return newError(ErrorInvalidInput, "user_id_required", nil)
	}
	if err := s.directory.DeleteUser(ctx, user); err != nil {
		return newError(ErrorInternal, "directory_delete_error", err)
	}
	return nil
}

// CreateProfile stores a user profile as a self-referential membership:
// the record's group and user are the same identifier. Kept for
// compatibility with existing data; it deliberately does not share the
// AddMember path.
func (s *ChatService) CreateProfile(ctx context.Context, in ProfileInput) (domain.Member, error) {
	switch {
	case blank(in.GroupName):
		return domain.Member{}, newError(ErrorInvalidInput, "group_name_required", nil)
	case blank(in.UserID):
		return domain.Member{}, newError(ErrorInvalidInput, "user_id_required", nil)
	case blank(in.Language):
		return domain.Member{}, newError(ErrorInvalidInput, "language_required", nil)
	}

	_, exists, err := s.directory.Get(ctx, in.UserID, in.UserID)
	if err != nil {
		return domain.Member{}, newError(ErrorInternal, "directory_get_error", err)
	}
	if exists {
		return domain.Member{}, newError(ErrorConflict, "profile_exists", nil)
	}

	profile := domain.Member{
		GroupName:    in.UserID,
		UserID:       in.UserID,
		Language:     in.Language,
		ConnectionID: in.ConnectionID,
	}
	if err := s.directory.Add(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.Member{}, newError(ErrorConflict, "profile_exists", err)
		}
		return domain.Member{}, newError(ErrorInternal, "directory_add_error", err)
	}
	return profile, nil
}

// Languages returns the translation service's raw language catalog.
func (s *ChatService) Languages(ctx context.Context) ([]byte, error) {
	raw, err := s.translator.Languages(ctx)
	if err != nil {
		return nil, newError(ErrorUpstream, "languages_error", err)
	}
	return raw, nil
}

// OnlineUsers returns every membership record across all groups, for the
// administrative presence listing.
func (s *ChatService) OnlineUsers(ctx context.Context) ([]domain.Member, error) {
	members, err := s.directory.ListAll(ctx)
	if err != nil {
		return nil, newError(ErrorInternal, "directory_list_all_error", err)
	}
	return members, nil
}
