package api

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/thegamersstation/gsm/internal/bus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Sync replays the offline request queue now instead of at the next tick.
func (s *WorkerService) Sync(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.replayer == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "background sync not running")
	}
	res, err := s.replayer.Replay(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "replay: %v", err)
	}
	return newStruct(map[string]any{
		"success":  true,
		"replayed": res.Replayed,
		"failed":   res.Failed,
	})
}

// WatchEvents streams bus events whose kind starts with the requested
// namespace ("" for every event).
func (s *WorkerService) WatchEvents(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	namespace := req.GetFields()["namespace"].GetStringValue()
	ch, unsub := s.bus.Subscribe(namespace, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			env, err := envelope(s.profile, evt)
			if err != nil {
				s.logger.Debug("skipping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// envelope wraps evt with an id and its payload as JSON-shaped values.
func envelope(profile string, evt bus.Event) (*structpb.Struct, error) {
	payload, err := payloadValue(evt.Payload)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"event_id":            uuid.New().String(),
		"profile":             profile,
		"kind":                evt.Kind,
		"occurred_at_unix_ms": evt.Timestamp.UnixMilli(),
		"payload":             payload,
	})
}

func payloadValue(p any) (any, error) {
	if p == nil {
		return nil, nil
	}
	if err, ok := p.(error); ok {
		return map[string]any{"error": err.Error()}, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
