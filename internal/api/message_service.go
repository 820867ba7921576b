package api

import (
	"context"

	"github.com/thegamersstation/gsm/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ListMessages serves mirrored messages of one conversation, oldest first.
func (s *WorkerService) ListMessages(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	convID := req.GetFields()["conversation_id"].GetStringValue()
	if convID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	limit := intField(req, "limit", 50)
	before := int64(req.GetFields()["before_ms"].GetNumberValue())

	msgs, err := s.db.ListMessages(convID, before, limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list messages: %v", err)
	}

	list := make([]any, 0, len(msgs))
	for _, m := range msgs {
		list = append(list, messageFields(&m))
	}
	return newStruct(map[string]any{
		"messages": list,
		"has_more": len(msgs) == limit,
	})
}

func messageFields(m *store.Message) map[string]any {
	f := map[string]any{
		"id":              m.ID,
		"conversation_id": m.ConversationID,
		"sender_id":       m.SenderID,
		"content":         m.Content,
		"is_own":          m.IsOwn,
		"is_read":         m.IsRead,
		"created_at":      m.CreatedAt,
	}
	if p := payloadField(m.Payload); p != nil {
		f["payload"] = p
	}
	return f
}
