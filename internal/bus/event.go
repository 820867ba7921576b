package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix, so the part before the first
// dot doubles as the namespace.
const (
	KindWorkerStatus    = "worker.status_changed"
	KindCacheStored     = "cache.stored"
	KindCacheTrimmed    = "cache.trimmed"
	KindCacheCleared    = "cache.cleared"
	KindBgSyncQueued    = "bgsync.queued"
	KindBgSyncReplayed  = "bgsync.replayed"
	KindBgSyncFailed    = "bgsync.failed"
	KindContentRefresh  = "bgsync.content_refreshed"
	KindMessagingStatus = "messaging.status_changed"
	KindChatMessage     = "chat.message_received"
	KindChatSendAck     = "chat.send_ack"
	KindChatSendFailed  = "chat.send_failed"
	KindChatInbox       = "chat.inbox_loaded"
	KindChatReadReceipt = "chat.read_receipt"
	KindMirrorMessage   = "mirror.message_upserted"
	KindMirrorBatch     = "mirror.conversations_upserted"
	KindAuthLogin       = "auth.login"
	KindAuthLogout      = "auth.logout"
	KindNotifyError     = "notify.error"
)

// Notice is the payload of notify.* events: a user-facing toast.
type Notice struct {
	MessageAr string
	MessageEn string
	Status    int
}

// Navigation is the payload of auth.logout: where the UI should go next.
type Navigation struct {
	To         string
	ReturnPath string
}
