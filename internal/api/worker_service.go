package api

import (
	"context"
	"time"

	"github.com/thegamersstation/gsm/internal/bgsync"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/status"
	"github.com/thegamersstation/gsm/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Cache is the cache engine as seen by the RPC. *cache.Engine satisfies it.
type Cache interface {
	SkipWaiting(ctx context.Context) error
	ClearAll(ctx context.Context) error
	CacheURLs(ctx context.Context, urls []string) int
	State() status.State
	Version() string
	Stats() ([]store.BucketInfo, error)
}

// Replayer flushes the offline request queue. *bgsync.Replayer satisfies it.
type Replayer interface {
	Replay(ctx context.Context) (bgsync.Result, error)
}

// Store is the read side of the local database. *store.DB satisfies it.
type Store interface {
	ListConversations(limit, offset int) ([]store.Conversation, error)
	ListMessages(conversationID string, beforeMs int64, limit int) ([]store.Message, error)
	QueueLength() (int, error)
	ConversationCount() (int, error)
}

// WorkerService implements gsm.v1.WorkerService.
type WorkerService struct {
	profile   string
	startedAt time.Time
	cache     Cache
	replayer  Replayer
	db        Store
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewWorkerService creates the worker RPC service.
func NewWorkerService(profile string, c Cache, r Replayer, db Store, b *bus.Bus, logger *zap.Logger) *WorkerService {
	return &WorkerService{
		profile:   profile,
		startedAt: time.Now(),
		cache:     c,
		replayer:  r,
		db:        db,
		bus:       b,
		logger:    logger,
	}
}

func (s *WorkerService) SkipWaiting(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.cache.SkipWaiting(ctx); err != nil {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "skip waiting: %v", err)
	}
	return &structpb.Struct{}, nil
}

func (s *WorkerService) ClearCache(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.cache.ClearAll(ctx); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "clear cache: %v", err)
	}
	s.logger.Info("cache cleared")
	return success(), nil
}

func (s *WorkerService) CacheURLs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := req.GetFields()["urls"].GetListValue().GetValues()
	urls := make([]string, 0, len(raw))
	for _, v := range raw {
		if u := v.GetStringValue(); u != "" {
			urls = append(urls, u)
		}
	}
	n := s.cache.CacheURLs(ctx, urls)
	s.logger.Debug("urls cached", zap.Int("requested", len(urls)), zap.Int("stored", n))
	return success(), nil
}

func (s *WorkerService) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	stats, err := s.cache.Stats()
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "cache stats: %v", err)
	}
	buckets := make(map[string]any, len(stats))
	for _, b := range stats {
		buckets[b.Name] = b.Entries
	}
	fields := map[string]any{
		"profile":   s.profile,
		"state":     string(s.cache.State()),
		"version":   s.cache.Version(),
		"buckets":   buckets,
		"uptime_ms": time.Since(s.startedAt).Milliseconds(),
	}

	// Populate counts from store.
	if s.db != nil {
		if n, err := s.db.QueueLength(); err == nil {
			fields["queued_requests"] = n
		}
		if n, err := s.db.ConversationCount(); err == nil {
			fields["mirrored_conversations"] = n
		}
	}
	return newStruct(fields)
}

func success() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{"success": structpb.NewBoolValue(true)}}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return st, nil
}
