package api

import (
	"context"
	"encoding/json"

	"github.com/thegamersstation/gsm/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ListConversations serves the offline conversation mirror.
func (s *WorkerService) ListConversations(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := intField(req, "limit", 50)
	offset := intField(req, "offset", 0)

	convs, err := s.db.ListConversations(limit, offset)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list conversations: %v", err)
	}

	list := make([]any, 0, len(convs))
	for _, c := range convs {
		list = append(list, conversationFields(&c))
	}
	return newStruct(map[string]any{
		"conversations": list,
		"has_more":      len(convs) == limit,
	})
}

func conversationFields(c *store.Conversation) map[string]any {
	return map[string]any{
		"id":                   c.ID,
		"post_id":              c.PostID,
		"title":                c.Title,
		"other_name":           c.OtherName,
		"unread_count":         c.UnreadCount,
		"last_message_at":      c.LastMessageAt,
		"last_message_preview": c.LastMessagePreview,
	}
}

// intField reads a numeric field, falling back to def when absent or
// negative.
func intField(req *structpb.Struct, name string, def int) int {
	v, ok := req.GetFields()[name]
	if !ok {
		return def
	}
	n := int(v.GetNumberValue())
	if n < 0 || (n == 0 && def > 0) {
		return def
	}
	return n
}

// payloadField decodes a stored JSON document for the reply, or nil.
func payloadField(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
