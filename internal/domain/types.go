package domain

// MessageStatus drives the delivery marker next to own messages.
type MessageStatus string

const (
	StatusSending MessageStatus = "SENDING"
	StatusSent    MessageStatus = "SENT"
	StatusRead    MessageStatus = "READ"
	StatusFailed  MessageStatus = "FAILED"
)

// PublicUser is the profile shown to the other side of a conversation.
type PublicUser struct {
	ID           ID     `json:"id"`
	Username     string `json:"username,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
	CityName     string `json:"cityName,omitempty"`
}

// Name returns the username, or a placeholder built from the id.
func (u PublicUser) Name() string {
	if u.Username != "" {
		return u.Username
	}
	if u.ID != "" {
		return "user-" + string(u.ID)
	}
	return ""
}

// Message is a chat message.
type Message struct {
	ID             ID            `json:"id"`
	ConversationID ID            `json:"conversationId"`
	Sender         PublicUser    `json:"sender"`
	Content        string        `json:"content"`
	MessageType    string        `json:"messageType,omitempty"`
	IsRead         bool          `json:"isRead"`
	ReadAt         Time          `json:"readAt"`
	CreatedAt      Time          `json:"createdAt"`
	IsOwnMessage   bool          `json:"isOwnMessage"`
	Status         MessageStatus `json:"status,omitempty"`
}

// ParticipantStatus is the caller's per-conversation preferences.
type ParticipantStatus struct {
	IsMuted           bool `json:"isMuted"`
	IsArchived        bool `json:"isArchived"`
	IsBlocked         bool `json:"isBlocked"`
	LastReadMessageID ID   `json:"lastReadMessageId"`
	LastSeenAt        Time `json:"lastSeenAt"`
}

// Conversation is a buyer/seller thread about one post.
type Conversation struct {
	ID                  ID                 `json:"id"`
	Post                *Post              `json:"post,omitempty"`
	Seller              PublicUser         `json:"seller"`
	Buyer               PublicUser         `json:"buyer"`
	LastMessageAt       Time               `json:"lastMessageAt"`
	LastMessagePreview  string             `json:"lastMessagePreview"`
	UnreadCount         int64              `json:"unreadCount"`
	ParticipantStatus   *ParticipantStatus `json:"participantStatus,omitempty"`
	IsCurrentUserSeller bool               `json:"isCurrentUserSeller"`
	OtherParticipant    PublicUser         `json:"otherParticipant"`
	CreatedAt           Time               `json:"createdAt"`
	UpdatedAt           Time               `json:"updatedAt"`
}

// Title is the post title, falling back to the other participant.
func (c Conversation) Title() string {
	if c.Post != nil && c.Post.Title != "" {
		return c.Post.Title
	}
	return c.OtherParticipant.Name()
}

// ReadReceipt tells the sender their messages were read.
type ReadReceipt struct {
	ConversationID ID   `json:"conversationId"`
	ReadByUserID   ID   `json:"readByUserId"`
	ReadAt         Time `json:"readAt"`
}

// TypingStatus is published on a conversation's typing topic.
type TypingStatus struct {
	UserID ID   `json:"userId,omitempty"`
	Typing bool `json:"typing"`
}

// ConversationStatus is the reply to a conversation status subscription.
type ConversationStatus struct {
	ConversationID ID   `json:"conversationId"`
	IsOnline       bool `json:"isOnline"`
}

// MessagesPage is one cursor page of messages in chronological order.
// NextCursor is the id of the oldest message returned.
type MessagesPage struct {
	Messages      []Message `json:"messages"`
	TotalMessages int64     `json:"totalMessages"`
	HasMore       bool      `json:"hasMore"`
	NextCursor    ID        `json:"nextCursor"`
	Count         int       `json:"count"`
}

// Page is Spring's paged response envelope.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// ConversationsPage adds the unread conversation total.
type ConversationsPage struct {
	Page[Conversation]
	TotalUnreadConversations int64 `json:"totalUnreadConversations"`
}

// Post is a marketplace listing.
type Post struct {
	ID          ID       `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price,omitempty"`
	Type        string   `json:"type,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Status      string   `json:"status,omitempty"`
	CategoryID  ID       `json:"categoryId,omitempty"`
	CityID      ID       `json:"cityId,omitempty"`
	Images      []string `json:"images,omitempty"`
	CreatedAt   Time     `json:"createdAt"`
}

// Category is a listing category.
type Category struct {
	ID     ID     `json:"id"`
	NameEn string `json:"nameEn"`
	NameAr string `json:"nameAr"`
	Slug   string `json:"slug,omitempty"`
}

// City is a Saudi city.
type City struct {
	ID       ID     `json:"id"`
	NameEn   string `json:"nameEn"`
	NameAr   string `json:"nameAr"`
	RegionID ID     `json:"regionId,omitempty"`
}

// CityInfo is the embedded city of a profile.
type CityInfo struct {
	ID     ID     `json:"id"`
	NameEn string `json:"nameEn"`
	NameAr string `json:"nameAr"`
}

// Profile is the caller's own profile.
type Profile struct {
	ID               ID        `json:"id"`
	PhoneNumber      string    `json:"phoneNumber"`
	Username         string    `json:"username,omitempty"`
	Email            string    `json:"email,omitempty"`
	CityID           ID        `json:"cityId,omitempty"`
	City             *CityInfo `json:"city,omitempty"`
	Role             string    `json:"role,omitempty"`
	ProfileCompleted bool      `json:"profileCompleted"`
	ProfileImage     string    `json:"profileImage,omitempty"`
}

// ProfileUpdate is the body of PUT /users/profile.
type ProfileUpdate struct {
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
	CityID       ID     `json:"cityId,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// User is the session user kept in local storage after OTP verification.
type User struct {
	UserID           ID     `json:"userId"`
	PhoneNumber      string `json:"phoneNumber"`
	Role             string `json:"role"`
	ProfileCompleted bool   `json:"profileCompleted"`
	IsNewUser        bool   `json:"isNewUser"`
}

// AuthResponse is returned by OTP verification and token refresh.
type AuthResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	UserID           ID     `json:"userId"`
	PhoneNumber      string `json:"phoneNumber"`
	Role             string `json:"role"`
	ProfileCompleted bool   `json:"profileCompleted"`
	IsNewUser        bool   `json:"isNewUser"`
}

// PostFilter narrows post listing and search.
type PostFilter struct {
	Query      string
	CategoryID string
	CityID     string
	RegionID   string
	Type       string
	Condition  string
	MinPrice   string
	MaxPrice   string
	Page       *int
	Size       *int
	SortBy     string
	Direction  string
}
