// internal/service/share_service.go
package service

import (
	"alcyxob/fitness-share/internal/domain"
	"alcyxob/fitness-share/internal/repository"
	"alcyxob/fitness-share/internal/shareid"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// --- Error Definitions ---
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidShareID      = fmt.Errorf("%w: share ID must be 6 characters [A-Z0-9]", ErrInvalidInput)
	ErrShareNotFound       = errors.New("shared workout not found")
	ErrShareGone           = errors.New("shared workout is no longer available")
	ErrShareDeactivated    = fmt.Errorf("%w: it has been deactivated", ErrShareGone)
	ErrShareExpired        = fmt.Errorf("%w: it has expired", ErrShareGone)
	ErrShareForbidden      = errors.New("access denied: not the owner of this share")
	ErrGenerationExhausted = errors.New("could not generate a unique share ID")
	ErrDuplicateKey        = errors.New("share ID already taken")
	ErrStorageUnavailable  = errors.New("share storage unavailable")
)

const (
	DefaultShareTTL    = 90 * 24 * time.Hour
	DefaultMaxAttempts = 10
)

// CreateShareResult is returned by CreateShare.
type CreateShareResult struct {
	ShareID   string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// ResolveShareResult is returned by ResolveShare. AccessCount is the value after this read.
type ResolveShareResult struct {
	ShareID     string
	PlanData    json.RawMessage
	SharedAt    time.Time
	AccessCount int64
	ExpiresAt   *time.Time
}

// ShareService issues and resolves public share IDs for workout plans.
// Every error it returns matches one of the sentinels above via errors.Is.
type ShareService interface {
	CreateShare(ctx context.Context, planData json.RawMessage, ownerRef *string, preferredID string) (*CreateShareResult, error)
	ResolveShare(ctx context.Context, shareID string) (*ResolveShareResult, error)
	UpdateShare(ctx context.Context, shareID, ownerRef string, patch domain.SharePatch) error
	DeleteShare(ctx context.Context, shareID, ownerRef string) error
}

// ShareOptions holds the tunables of the share protocol.
type ShareOptions struct {
	TTL         time.Duration // Zero means DefaultShareTTL
	NeverExpire bool          // Overrides TTL: shares get no expiresAt
	MaxAttempts int
	// StrictOwnership refuses update/delete on shares created without an owner.
	// Off by default: unowned shares can be changed by any authenticated trainer.
	StrictOwnership bool
}

// Option customizes a share service. Mostly useful in tests.
type Option func(*shareService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *shareService) { s.now = now }
}

// WithIDGenerator replaces the random share ID generator.
func WithIDGenerator(gen shareid.Generator) Option {
	return func(s *shareService) { s.generate = gen }
}

// --- Service Implementation ---

type shareService struct {
	repo     repository.SharedPlanRepository
	logger   *zap.Logger
	opts     ShareOptions
	now      func() time.Time
	generate shareid.Generator
}

// NewShareService creates a ShareService backed by repo.
func NewShareService(repo repository.SharedPlanRepository, logger *zap.Logger, opts ShareOptions, options ...Option) ShareService {
	if repo == nil {
		panic("share repository cannot be nil")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultShareTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	s := &shareService{
		repo:     repo,
		logger:   logger.With(zap.String("component", "share_service")),
		opts:     opts,
		now:      time.Now,
		generate: shareid.Generate,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// CreateShare stores planData under a fresh share ID.
func (s *shareService) CreateShare(ctx context.Context, planData json.RawMessage, ownerRef *string, preferredID string) (*CreateShareResult, error) {
	// 1. Validate Input
	if len(planData) == 0 || string(planData) == "null" {
		return nil, fmt.Errorf("%w: plan data is required", ErrInvalidInput)
	}
	if !json.Valid(planData) {
		return nil, fmt.Errorf("%w: plan data must be valid JSON", ErrInvalidInput)
	}
	if ownerRef != nil && *ownerRef == "" {
		ownerRef = nil
	}

	preferred := shareid.Normalize(preferredID)
	if preferred != "" && !shareid.Valid(preferred) {
		// A malformed preferred ID is not worth failing the request over.
		s.logger.Debug("ignoring malformed preferred share ID", zap.String("preferredId", preferredID))
		preferred = ""
	}

	// 2. Reserve an ID and insert. The store's uniqueness check is the real
	// guard: a lost race surfaces as ErrDuplicateKey and we go around again.
	var lastErr error = ErrGenerationExhausted
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		id, err := s.reserve(ctx, preferred)
		if err != nil {
			return nil, err
		}

		now := s.now().UTC()
		plan := &domain.SharedPlan{
			ShareID:   id,
			PlanData:  planData,
			OwnerRef:  ownerRef,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if !s.opts.NeverExpire {
			expires := now.Add(s.opts.TTL)
			plan.ExpiresAt = &expires
		}

		err = s.repo.Insert(ctx, plan)
		if err == nil {
			s.logger.Info("share created",
				zap.String("shareId", id),
				zap.Bool("owned", plan.HasOwner()),
				zap.Int("attempt", attempt),
			)
			return &CreateShareResult{ShareID: id, CreatedAt: plan.CreatedAt, ExpiresAt: plan.ExpiresAt}, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, storageError(err)
		}

		s.logger.Debug("share ID taken at insert, retrying", zap.String("shareId", id), zap.Int("attempt", attempt))
		lastErr = fmt.Errorf("%w: %w", ErrGenerationExhausted, ErrDuplicateKey)
		preferred = ""
	}

	s.logger.Warn("giving up on share creation", zap.Int("attempts", s.opts.MaxAttempts))
	return nil, lastErr
}

// reserve returns a share ID that was free at the time of the check.
// The preferred ID wins if it is free; otherwise up to MaxAttempts random IDs are drawn.
func (s *shareService) reserve(ctx context.Context, preferred string) (string, error) {
	if preferred != "" {
		exists, err := s.repo.Exists(ctx, preferred)
		if err != nil {
			return "", storageError(err)
		}
		if !exists {
			return preferred, nil
		}
		s.logger.Debug("preferred share ID already taken", zap.String("shareId", preferred))
	}

	for i := 0; i < s.opts.MaxAttempts; i++ {
		candidate := s.generate()
		exists, err := s.repo.Exists(ctx, candidate)
		if err != nil {
			return "", storageError(err)
		}
		if !exists {
			return candidate, nil
		}
	}
	s.logger.Warn("share ID space looks crowded", zap.Int("attempts", s.opts.MaxAttempts))
	return "", ErrGenerationExhausted
}

// ResolveShare returns the plan behind shareID and counts the access.
func (s *shareService) ResolveShare(ctx context.Context, shareID string) (*ResolveShareResult, error) {
	// 1. Validate the ID before going anywhere near storage
	id := shareid.Normalize(shareID)
	if !shareid.Valid(id) {
		return nil, ErrInvalidShareID
	}

	// 2. Load and check state
	plan, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !plan.Resolvable(now) {
		return nil, goneReason(plan, now)
	}

	// 3. Count the read. The store re-checks state, so a share deactivated
	// since step 2 is not served.
	count, err := s.repo.RecordAccess(ctx, id, now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrShareNotFound // deleted between find and increment
		case errors.Is(err, repository.ErrNotResolvable):
			return nil, s.recheckGone(ctx, id, now)
		}
		return nil, storageError(err)
	}

	return &ResolveShareResult{
		ShareID:     plan.ShareID,
		PlanData:    plan.PlanData,
		SharedAt:    plan.CreatedAt,
		AccessCount: count,
		ExpiresAt:   plan.ExpiresAt,
	}, nil
}

// UpdateShare applies patch to a share the caller owns.
func (s *shareService) UpdateShare(ctx context.Context, shareID, ownerRef string, patch domain.SharePatch) error {
	id := shareid.Normalize(shareID)
	if !shareid.Valid(id) {
		return ErrInvalidShareID
	}
	if patch.Empty() {
		return fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if patch.HasPlanData() && !json.Valid(patch.PlanData) {
		return fmt.Errorf("%w: plan data must be valid JSON", ErrInvalidInput)
	}

	plan, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkOwner(plan, ownerRef); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, id, patch, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrShareNotFound
		}
		return storageError(err)
	}
	s.logger.Info("share updated",
		zap.String("shareId", id),
		zap.Bool("planData", patch.HasPlanData()),
		zap.Any("isActive", patch.IsActive),
	)
	return nil
}

// DeleteShare permanently removes a share the caller owns.
func (s *shareService) DeleteShare(ctx context.Context, shareID, ownerRef string) error {
	id := shareid.Normalize(shareID)
	if !shareid.Valid(id) {
		return ErrInvalidShareID
	}

	plan, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkOwner(plan, ownerRef); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrShareNotFound
		}
		return storageError(err)
	}
	s.logger.Info("share deleted", zap.String("shareId", id))
	return nil
}

func (s *shareService) find(ctx context.Context, id string) (*domain.SharedPlan, error) {
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrShareNotFound
		}
		return nil, storageError(err)
	}
	return plan, nil
}

func (s *shareService) checkOwner(plan *domain.SharedPlan, ownerRef string) error {
	if plan.HasOwner() {
		if !plan.OwnedBy(ownerRef) {
			s.logger.Info("share ownership mismatch", zap.String("shareId", plan.ShareID))
			return ErrShareForbidden
		}
		return nil
	}
	if s.opts.StrictOwnership {
		return ErrShareForbidden
	}
	return nil
}

// goneReason picks the error for a share that is not resolvable at now.
func goneReason(plan *domain.SharedPlan, now time.Time) error {
	if !plan.IsActive {
		return ErrShareDeactivated
	}
	if plan.Expired(now) {
		return ErrShareExpired
	}
	return ErrShareGone
}

// recheckGone reloads a share the store refused to count, to report why.
func (s *shareService) recheckGone(ctx context.Context, id string, now time.Time) error {
	plan, err := s.find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrShareNotFound) {
			return err
		}
		return ErrShareGone
	}
	return goneReason(plan, now)
}

func storageError(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
