package models

import "time"

// DefaultMessageType is used when the sender does not pick one.
const DefaultMessageType = "text"

// Message is an append-only direct message. IsRead only moves false -> true.
type Message struct {
	ID          int       `db:"id" json:"id"`
	SenderID    int       `db:"sender_id" json:"sender_id"`
	ReceiverID  int       `db:"receiver_id" json:"receiver_id"`
	Content     string    `db:"content" json:"content"`
	MessageType string    `db:"message_type" json:"message_type"`
	IsRead      bool      `db:"is_read" json:"is_read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// After reports whether m sorts after o under the (created_at, id) key.
func (m Message) After(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.After(o.CreatedAt)
	}
	return m.ID > o.ID
}

// MessageView is a message annotated with its sender's username.
type MessageView struct {
	Message
	SenderUsername string `json:"sender_username"`
}

// Pagination describes one page of a message history.
type Pagination struct {
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// NewPagination derives page metadata from a total row count.
func NewPagination(page, perPage, total int) Pagination {
	pages := 0
	if total > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Pagination{
		Page:    page,
		Pages:   pages,
		PerPage: perPage,
		Total:   total,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}

// HistoryPage is a FetchHistory result. Messages are oldest first.
// MarkedRead counts the messages the fetch moved to read.
type HistoryPage struct {
	Messages   []MessageView `json:"messages"`
	Pagination Pagination    `json:"pagination"`
	MarkedRead int64         `json:"-"`
}

// MessageEvent is pushed to websocket clients.
type MessageEvent struct {
	Type     string   `json:"type"`
	Message  *Message `json:"message,omitempty"`
	ReaderID int      `json:"reader_id,omitempty"`
	Count    int64    `json:"count,omitempty"`
}
