package store

import "time"

type Role string

const (
	RoleUser    Role = "user"
	RoleMachine Role = "machine"
)

type Conversation struct {
	ID        string    `json:"id"` // UUID
	OwnerID   string    `json:"owner_id"`
	Title     *string   `json:"title"` // Nullable
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"` // UUID
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	ReplyTo        *string   `json:"reply_to,omitempty"` // machine messages only
	IsHelpful      *bool     `json:"is_helpful"`
	Reason         *string   `json:"reason,omitempty"`
	Category       *string   `json:"category,omitempty"`
}

type SourceType string

const (
	SourceUploaded    SourceType = "uploaded"
	SourceAuthored    SourceType = "authored"
	SourceWebImported SourceType = "web-imported"
)

type Visibility string

const (
	VisibilityOnlyMe   Visibility = "onlyMe"
	VisibilityViewOnly Visibility = "viewOnly"
)

func (v Visibility) Valid() bool {
	return v == VisibilityOnlyMe || v == VisibilityViewOnly
}

type DocumentStatus string

const (
	StatusDraft   DocumentStatus = "draft"
	StatusSynced  DocumentStatus = "synced"
	StatusSyncing DocumentStatus = "syncing"
)

type Document struct {
	ID         string         `json:"id"` // UUID
	SourceType SourceType     `json:"source_type"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	SourceURL  *string        `json:"source_url"` // uploaded and web-imported only
	Visibility Visibility     `json:"visibility"`
	Status     DocumentStatus `json:"status"`
	OwnerID    string         `json:"owner_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
