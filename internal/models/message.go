package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type InputMethod string

const (
	InputTyped InputMethod = "typed"
	InputVoice InputMethod = "voice"
)

// VoiceMetadata carries the language classification of a spoken message.
// BaatCheet users mix Urdu and English freely, and a large share type Urdu in
// Latin script ("Roman Urdu"); the backend wants to know which it got.
type VoiceMetadata struct {
	IsRomanUrdu     bool   `json:"is_roman_urdu"`
	IsMixedLanguage bool   `json:"is_mixed_language"`
	PrimaryLanguage string `json:"primary_language"` // "ur", "en", ...
}

// Message is one entry in the conversation. Content of an assistant message
// mutates while its response streams; once the exchange completes the message
// is immutable. Draft messages carry a temporary uuid until the server assigns
// a canonical id.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`

	InputMethod InputMethod    `json:"input_method,omitempty"`
	Voice       *VoiceMetadata `json:"voice,omitempty"`

	Streaming bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
