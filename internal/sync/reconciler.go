package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/store"
	"go.uber.org/zap"
)

const checkpointPrefix = "mirror."

// Source lists conversations and their messages. *backend.Client
// satisfies it.
type Source interface {
	ListConversations(ctx context.Context, page, size int) (*domain.ConversationsPage, error)
	GetMessages(ctx context.Context, id, cursor domain.ID, size int) (*domain.MessagesPage, error)
}

// Reconciler pulls the backend's view into the mirror and records when it
// last did so.
type Reconciler struct {
	db       *store.DB
	engine   *Engine
	src      Source
	logger   *zap.Logger
	maxPages int
	pageSize int
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, engine *Engine, src Source, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, engine: engine, src: src, logger: logger, maxPages: 5, pageSize: 20}
}

// Reconcile mirrors up to maxPages of conversations and the newest page of
// messages of each one with unread messages. It returns the number of
// conversations mirrored.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	total := 0
	for page := 0; page < r.maxPages; page++ {
		p, err := r.src.ListConversations(ctx, page, r.pageSize)
		if err != nil {
			return total, fmt.Errorf("list conversations page %d: %w", page, err)
		}
		if err := r.engine.IngestConversations(p.Content); err != nil {
			return total, err
		}
		total += len(p.Content)
		for _, c := range p.Content {
			if c.UnreadCount == 0 {
				continue
			}
			if err := r.reconcileMessages(ctx, c.ID); err != nil {
				r.logger.Warn("mirror messages failed", zap.String("conversation", c.ID.String()), zap.Error(err))
			}
		}
		if p.Last || len(p.Content) < r.pageSize {
			break
		}
	}
	if err := r.UpdateCheckpoint("last_reconcile", strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		return total, fmt.Errorf("update checkpoint: %w", err)
	}
	r.logger.Info("mirror reconciled", zap.Int("conversations", total))
	return total, nil
}

func (r *Reconciler) reconcileMessages(ctx context.Context, id domain.ID) error {
	p, err := r.src.GetMessages(ctx, id, "", r.pageSize)
	if err != nil {
		return err
	}
	for _, m := range p.Messages {
		if m.ConversationID.IsZero() {
			m.ConversationID = id
		}
		if err := r.engine.IngestMessage(m); err != nil {
			return err
		}
	}
	return nil
}

// LastReconciled returns when Reconcile last completed, or the zero time.
func (r *Reconciler) LastReconciled() time.Time {
	v, err := r.GetCheckpoint("last_reconcile")
	if err != nil || v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// UpdateCheckpoint updates a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(key, value string) error {
	return r.db.SetItem(checkpointPrefix+key, value)
}

// GetCheckpoint retrieves a sync checkpoint value, "" when unset.
func (r *Reconciler) GetCheckpoint(key string) (string, error) {
	v, _, err := r.db.GetItem(checkpointPrefix + key)
	return v, err
}
