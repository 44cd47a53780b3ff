package models

// Conversation is one chat list entry: the latest message exchanged with a
// partner and how many of the partner's messages are still unread.
type Conversation struct {
	Partner     User    `json:"partner"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}

// ConversationRow is the storage-level form of a Conversation, before the
// partner is resolved against the directory.
type ConversationRow struct {
	PartnerID   int
	LastMessage Message
	UnreadCount int
}
