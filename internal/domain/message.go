package domain

// TranslatedMessage is the acknowledgment returned to the sender and the
// payload pushed to the recipient. Messages are ephemeral; nothing here is
// persisted.
type TranslatedMessage struct {
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
	SourceUserID   string `json:"sourceUserId"`
	TargetUserID   string `json:"targetUserId"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	GroupName      string `json:"groupName"`
	Timestamp      string `json:"timestamp"`
}

// PushNotification addresses a TranslatedMessage to a recipient's live
// connection for out-of-band delivery, distinct from the synchronous
// acknowledgment.
type PushNotification struct {
	Event        string            `json:"event"`
	ConnectionID string            `json:"-"`
	GroupName    string            `json:"groupName"`
	TargetUserID string            `json:"targetUserId"`
	Message      TranslatedMessage `json:"message"`
}
