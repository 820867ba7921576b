package store

import "net/http"

// Entry is one cached response in a bucket.
type Entry struct {
	ID       int64
	Bucket   string
	Method   string
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt int64
}

// BucketInfo summarizes a bucket for the worker status RPC.
type BucketInfo struct {
	Name    string
	Entries int
}

// QueuedRequest is a POST that failed offline and waits for replay.
type QueuedRequest struct {
	ID        int64
	RequestID string
	Method    string
	URL       string
	Header    http.Header
	Body      []byte
	Attempts  int
	LastError string
	CreatedAt int64
}

// Conversation is the local mirror of a backend conversation.
// Payload holds the full JSON document; the other columns are for ordering.
type Conversation struct {
	ID                 string
	PostID             string
	Title              string
	OtherName          string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
	Payload            []byte
}

// Message is the local mirror of a backend message.
type Message struct {
	ConversationID string
	ID             string
	SenderID       string
	Content        string
	IsOwn          bool
	IsRead         bool
	CreatedAt      int64
	Payload        []byte
}
