package reconcile

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/internal/queue"
	"github.com/rs/zerolog"
)

// Service drains the outbound queue into the remote in one batched upload
// and applies the server's per-item verdict. Delivery is at-least-once: an
// item leaves the queue only after the server confirms it processed, so a
// lost response re-submits the item and the client-temp id lets the server
// deduplicate.
//
// Only one drain runs at a time. A second caller gets ErrReconcileRunning
// instead of waiting, because two drains reading the same pending items
// would double-submit them.
type Service interface {
	// Reconcile performs one drain. force re-includes items held after
	// repeated rejections and ignores backoff waits.
	Reconcile(ctx context.Context, force bool) (*domain.ReconcileResult, error)

	// IsRunning reports whether a drain is in flight.
	IsRunning() bool

	// HeldForReview counts items rejected so often they are excluded from
	// regular drains until forced.
	HeldForReview(ctx context.Context) (int, error)
}

type service struct {
	log    zerolog.Logger
	cfg    domain.SyncConfig
	queue  queue.Service
	remote domain.RemoteGateway

	mu      sync.Mutex
	running bool
}

func NewService(log logger.Logger, cfg domain.SyncConfig, queueSvc queue.Service, remote domain.RemoteGateway) Service {
	return &service{
		log:    log.With().Str("module", "reconcile").Logger(),
		cfg:    cfg,
		queue:  queueSvc,
		remote: remote,
	}
}

func (s *service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *service) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *service) finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *service) Reconcile(ctx context.Context, force bool) (*domain.ReconcileResult, error) {
	if !s.tryStart() {
		return nil, domain.ErrReconcileRunning
	}
	defer s.finish()

	now := time.Now()

	batch, submitted, err := s.buildBatch(ctx, now, force)
	if err != nil {
		return nil, err
	}

	if batch.Empty() {
		s.log.Debug().Msg("Nothing eligible to reconcile")
		return &domain.ReconcileResult{NoOp: true}, nil
	}

	s.log.Info().
		Int("bids", len(batch.Bids)).
		Int("bookings", len(batch.Bookings)).
		Int("messages", len(batch.Messages)).
		Msg("Uploading pending mutations")

	result, err := s.remote.Upload(ctx, *batch)
	if err != nil {
		// No response means no verdict: the queue stays exactly as it
		// was and the next drain re-submits the same batch.
		s.log.Warn().Err(err).Msg("Upload failed, queue left untouched")
		return nil, err
	}

	outcome, err := s.apply(ctx, submitted, result, now)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("processed", outcome.Processed.Total()).
		Int("retained", outcome.Retained.Total()).
		Int("rejected", len(outcome.Errors)).
		Msg("Reconciliation finished")

	if len(outcome.Errors) > 0 {
		return outcome, &domain.PartialUploadError{Errors: outcome.Errors}
	}
	return outcome, nil
}

// buildBatch snapshots the queue and assembles the upload payload from the
// eligible items.
func (s *service) buildBatch(ctx context.Context, now time.Time, force bool) (*domain.UploadBatch, map[domain.MutationKind][]string, error) {
	batch := &domain.UploadBatch{Timestamp: now}
	submitted := make(map[domain.MutationKind][]string)

	for _, kind := range domain.Kinds() {
		pending, err := s.queue.Pending(ctx, kind)
		if err != nil {
			return nil, nil, err
		}

		for _, item := range pending {
			if !force && !s.eligible(item, now) {
				continue
			}

			if !s.appendItem(batch, item) {
				continue
			}
			submitted[kind] = append(submitted[kind], item.ClientTempID)
		}
	}

	return batch, submitted, nil
}

// appendItem decodes the envelope payload into its typed form and adds it to
// the batch. Undecodable payloads are skipped and stay queued.
func (s *service) appendItem(batch *domain.UploadBatch, item domain.QueuedMutation) bool {
	switch item.Kind {
	case domain.KindBids:
		var bid domain.OfflineBid
		if err := json.Unmarshal(item.Payload, &bid); err != nil {
			s.log.Warn().Err(err).Str("id", item.ClientTempID).Msg("Skipping undecodable bid payload")
			return false
		}
		batch.Bids = append(batch.Bids, bid)
	case domain.KindBookings:
		var booking domain.OfflineBooking
		if err := json.Unmarshal(item.Payload, &booking); err != nil {
			s.log.Warn().Err(err).Str("id", item.ClientTempID).Msg("Skipping undecodable booking payload")
			return false
		}
		batch.Bookings = append(batch.Bookings, booking)
	case domain.KindMessages:
		var msg domain.OfflineMessage
		if err := json.Unmarshal(item.Payload, &msg); err != nil {
			s.log.Warn().Err(err).Str("id", item.ClientTempID).Msg("Skipping undecodable message payload")
			return false
		}
		batch.Messages = append(batch.Messages, msg)
	default:
		s.log.Warn().Str("kind", string(item.Kind)).Str("id", item.ClientTempID).Msg("Skipping unknown mutation kind")
		return false
	}
	return true
}

// eligible applies the rejection backoff. Never-rejected items always go;
// held items wait for a forced drain; rejected items wait out an exponential
// delay so a repeatedly-rejected item cannot hammer the server.
func (s *service) eligible(item domain.QueuedMutation, now time.Time) bool {
	if item.Attempts == 0 {
		return true
	}
	if item.Attempts >= s.maxAttempts() {
		return false
	}
	return !now.Before(item.LastRejectedAt.Add(s.backoff(item.Attempts)))
}

func (s *service) maxAttempts() int {
	if s.cfg.MaxAttempts <= 0 {
		return 5
	}
	return s.cfg.MaxAttempts
}

func (s *service) backoff(attempts int) time.Duration {
	delay := s.cfg.BackoffBase()
	limit := s.cfg.BackoffCap()
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

// apply commits the server's verdict: confirmed ids leave the queue,
// rejected ids gain a rejection mark, everything else stays untouched for
// the next drain.
func (s *service) apply(ctx context.Context, submitted map[domain.MutationKind][]string, result *domain.UploadResult, now time.Time) (*domain.ReconcileResult, error) {
	outcome := &domain.ReconcileResult{Errors: result.Errors}

	rejected := make(map[string]domain.UploadError, len(result.Errors))
	for _, uploadErr := range result.Errors {
		rejected[uploadErr.ItemRef] = uploadErr
	}

	for _, kind := range domain.Kinds() {
		processed := make(map[string]bool)
		for _, id := range result.Processed(kind) {
			processed[id] = true
		}

		for _, id := range submitted[kind] {
			addCount(&outcome.Submitted, kind)

			uploadErr, wasRejected := rejected[id]

			switch {
			case processed[id]:
				if err := s.queue.Remove(ctx, kind, id); err != nil {
					return nil, err
				}
				addCount(&outcome.Processed, kind)
			case wasRejected:
				if err := s.queue.MarkRejected(ctx, kind, id, uploadErr.Reason, now); err != nil {
					return nil, err
				}
				addCount(&outcome.Retained, kind)
			default:
				// Not confirmed, not rejected: treated as unprocessed
				// and re-submitted next drain.
				addCount(&outcome.Retained, kind)
			}
		}
	}

	return outcome, nil
}

func addCount(counts *domain.OfflineCounts, kind domain.MutationKind) {
	switch kind {
	case domain.KindBids:
		counts.Bids++
	case domain.KindBookings:
		counts.Bookings++
	case domain.KindMessages:
		counts.Messages++
	}
}

func (s *service) HeldForReview(ctx context.Context) (int, error) {
	held := 0
	for _, kind := range domain.Kinds() {
		pending, err := s.queue.Pending(ctx, kind)
		if err != nil {
			return 0, err
		}
		for _, item := range pending {
			if item.Attempts >= s.maxAttempts() {
				held++
			}
		}
	}
	return held, nil
}
