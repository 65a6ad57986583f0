package queue

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/rs/zerolog"
)

// Service is the outbound mutation queue. Mutations created while offline
// are held here, one store entry per item keyed by client-temp id, until a
// reconciliation confirms the server processed them.
//
// Enqueueing the same client-temp id twice replaces the payload and keeps
// the original envelope, so a retried submission cannot duplicate an item.
type Service interface {
	EnqueueBid(ctx context.Context, bid domain.OfflineBid) (string, error)
	EnqueueBooking(ctx context.Context, booking domain.OfflineBooking) (string, error)
	EnqueueMessage(ctx context.Context, msg domain.OfflineMessage) (string, error)
	Pending(ctx context.Context, kind domain.MutationKind) ([]domain.QueuedMutation, error)
	Remove(ctx context.Context, kind domain.MutationKind, clientTempID string) error
	MarkRejected(ctx context.Context, kind domain.MutationKind, clientTempID, reason string, now time.Time) error
	HasPending(ctx context.Context) (bool, error)
	Counts(ctx context.Context) (domain.OfflineCounts, error)
}

type service struct {
	log   zerolog.Logger
	store domain.LocalStore
}

func NewService(log logger.Logger, store domain.LocalStore) Service {
	return &service{
		log:   log.With().Str("module", "queue").Logger(),
		store: store,
	}
}

func (s *service) EnqueueBid(ctx context.Context, bid domain.OfflineBid) (string, error) {
	if bid.ClientTempID == "" {
		bid.ClientTempID = domain.NewClientTempID(domain.KindBids)
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(bid)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode bid")
	}

	return bid.ClientTempID, s.enqueue(ctx, domain.KindBids, bid.ClientTempID, payload)
}

func (s *service) EnqueueBooking(ctx context.Context, booking domain.OfflineBooking) (string, error) {
	if booking.ClientTempID == "" {
		booking.ClientTempID = domain.NewClientTempID(domain.KindBookings)
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(booking)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode booking")
	}

	return booking.ClientTempID, s.enqueue(ctx, domain.KindBookings, booking.ClientTempID, payload)
}

func (s *service) EnqueueMessage(ctx context.Context, msg domain.OfflineMessage) (string, error) {
	if msg.ClientTempID == "" {
		msg.ClientTempID = domain.NewClientTempID(domain.KindMessages)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode message")
	}

	return msg.ClientTempID, s.enqueue(ctx, domain.KindMessages, msg.ClientTempID, payload)
}

// enqueue persists the envelope. An existing envelope for the same id keeps
// its EnqueuedAt and rejection history; only the payload is replaced.
func (s *service) enqueue(ctx context.Context, kind domain.MutationKind, clientTempID string, payload json.RawMessage) error {
	envelope := domain.QueuedMutation{
		Kind:         kind,
		ClientTempID: clientTempID,
		Payload:      payload,
		EnqueuedAt:   time.Now(),
	}

	existing, err := s.store.Get(ctx, kind.Namespace(), clientTempID)
	if err != nil {
		return err
	}
	if existing != nil {
		var prev domain.QueuedMutation
		if err := json.Unmarshal(existing, &prev); err == nil {
			envelope.EnqueuedAt = prev.EnqueuedAt
			envelope.Attempts = prev.Attempts
			envelope.LastError = prev.LastError
			envelope.LastRejectedAt = prev.LastRejectedAt
		}
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "failed to encode queue envelope")
	}

	if err := s.store.Put(ctx, kind.Namespace(), clientTempID, data); err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Str("id", clientTempID).Msg("Failed to persist queued mutation")
		return err
	}

	s.log.Debug().Str("kind", string(kind)).Str("id", clientTempID).Msg("Mutation queued")
	return nil
}

// Pending returns the partition's envelopes ordered by enqueue time.
// Entries that fail to decode are skipped and left in the store for
// inspection; dropping them would silently lose user data.
func (s *service) Pending(ctx context.Context, kind domain.MutationKind) ([]domain.QueuedMutation, error) {
	entries, err := s.store.AllEntries(ctx, kind.Namespace())
	if err != nil {
		return nil, err
	}

	pending := make([]domain.QueuedMutation, 0, len(entries))
	for key, data := range entries {
		var envelope domain.QueuedMutation
		if err := json.Unmarshal(data, &envelope); err != nil {
			s.log.Warn().Err(err).Str("kind", string(kind)).Str("id", key).Msg("Skipping undecodable queue entry")
			continue
		}
		pending = append(pending, envelope)
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].EnqueuedAt.Equal(pending[j].EnqueuedAt) {
			return pending[i].ClientTempID < pending[j].ClientTempID
		}
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})

	return pending, nil
}

func (s *service) Remove(ctx context.Context, kind domain.MutationKind, clientTempID string) error {
	if err := s.store.Delete(ctx, kind.Namespace(), clientTempID); err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Str("id", clientTempID).Msg("Failed to remove queued mutation")
		return err
	}
	s.log.Debug().Str("kind", string(kind)).Str("id", clientTempID).Msg("Mutation removed from queue")
	return nil
}

// MarkRejected records a server rejection on the envelope. The payload is
// untouched; only the rejection history changes.
func (s *service) MarkRejected(ctx context.Context, kind domain.MutationKind, clientTempID, reason string, now time.Time) error {
	data, err := s.store.Get(ctx, kind.Namespace(), clientTempID)
	if err != nil {
		return err
	}
	if data == nil {
		return errors.New("no queued mutation with id %s", clientTempID)
	}

	var envelope domain.QueuedMutation
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errors.Wrap(err, "failed to decode queue envelope for %s", clientTempID)
	}

	envelope.Attempts++
	envelope.LastError = reason
	envelope.LastRejectedAt = now

	updated, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "failed to encode queue envelope")
	}

	if err := s.store.Put(ctx, kind.Namespace(), clientTempID, updated); err != nil {
		return err
	}

	s.log.Debug().Str("kind", string(kind)).Str("id", clientTempID).Int("attempts", envelope.Attempts).Msg("Mutation marked rejected")
	return nil
}

func (s *service) HasPending(ctx context.Context) (bool, error) {
	counts, err := s.Counts(ctx)
	if err != nil {
		return false, err
	}
	return counts.Total() > 0, nil
}

func (s *service) Counts(ctx context.Context) (domain.OfflineCounts, error) {
	all, err := s.store.Counts(ctx)
	if err != nil {
		return domain.OfflineCounts{}, err
	}

	return domain.OfflineCounts{
		Bids:     all[domain.KindBids.Namespace()],
		Bookings: all[domain.KindBookings.Namespace()],
		Messages: all[domain.KindMessages.Namespace()],
	}, nil
}
