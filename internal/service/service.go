// Package service wires the pairing engine, the response state machine and
// the stores together. Handlers and the scheduler both call into it; neither
// holds any logic of its own.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"drop-match-api/internal/cache"
	"drop-match-api/internal/database"
	"drop-match-api/internal/events"
	"drop-match-api/internal/features"
	"drop-match-api/internal/models"
	"drop-match-api/internal/notify"
	"drop-match-api/internal/pairing"
	"drop-match-api/internal/validation"
)

// Service provides the business logic for the drop matching API.
type Service struct {
	db             *database.DB
	cache          cache.Cache
	cacheTTL       time.Duration
	notifier       *notify.Dispatcher
	events         *events.Manager
	flags          *features.Manager
	defaultCuisine string
}

// Options configures a Service.
type Options struct {
	Cache          cache.Cache
	CacheTTL       time.Duration
	Notifier       *notify.Dispatcher
	Events         *events.Manager
	Flags          *features.Manager
	DefaultCuisine string
}

// NewService creates a new service instance.
func NewService(db *database.DB, opts Options) *Service {
	if opts.Events == nil {
		opts.Events = events.NewManager(false)
	}
	if opts.Flags == nil {
		opts.Flags = features.NewManager()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.DefaultCuisine == "" {
		opts.DefaultCuisine = "chef's choice"
	}
	return &Service{
		db:             db,
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		notifier:       opts.Notifier,
		events:         opts.Events,
		flags:          opts.Flags,
		defaultCuisine: opts.DefaultCuisine,
	}
}

// UpsertProfile ingests a profile snapshot from the external profile store.
func (s *Service) UpsertProfile(ctx context.Context, p models.Profile) error {
	if err := validation.ValidateProfile(p); err != nil {
		return err
	}
	if err := s.db.UpsertProfile(ctx, p); err != nil {
		return err
	}
	if s.cacheEnabled() {
		if err := s.cache.Delete(ctx, cache.ProfileKey(p.UserID)); err != nil {
			log.Printf("service: failed to invalidate cached profile %s: %v", p.UserID, err)
		}
	}
	return nil
}

// UpsertDrop ingests a drop definition.
func (s *Service) UpsertDrop(ctx context.Context, d models.Drop) error {
	if err := validation.ValidateDrop(d); err != nil {
		return err
	}
	return s.db.UpsertDrop(ctx, d)
}

// RegisterUser records a user's registration for a drop. Registration closes
// at the drop's deadline.
func (s *Service) RegisterUser(ctx context.Context, dropID, userID string, now time.Time) error {
	if err := validation.ValidateUUID(dropID, "drop_id"); err != nil {
		return err
	}
	if err := validation.ValidateUUID(userID, "user_id"); err != nil {
		return err
	}

	drop, err := s.db.GetDrop(ctx, dropID)
	if err != nil {
		return err
	}
	if drop.Status != models.DropUpcoming {
		return &validation.ValidationError{Field: "drop_id", Message: "drop is not open for registration"}
	}
	if now.After(drop.RegistrationDeadline) {
		return &validation.ValidationError{Field: "drop_id", Message: "registration deadline has passed"}
	}

	if _, err := s.db.GetProfile(ctx, userID); err != nil {
		return err
	}

	return s.db.CreateRegistration(ctx, models.Registration{
		DropID:       dropID,
		UserID:       userID,
		Status:       models.RegistrationActive,
		RegisteredAt: now,
	})
}

// RunMatching is one scheduler pass: find drops whose start time has
// arrived and pair each of them. Per-drop failures are isolated; a broken
// drop never stops the rest of the pass. Safe to invoke concurrently: the
// per-drop claim in the store makes redundant passes no-ops.
func (s *Service) RunMatching(ctx context.Context, now time.Time) (models.RunSummary, error) {
	ctx, span := otel.Tracer("drop-match-api").Start(ctx, "service.RunMatching")
	defer span.End()

	var summary models.RunSummary

	drops, err := s.db.ListDueDrops(ctx, now)
	if err != nil {
		return summary, fmt.Errorf("failed to list due drops: %w", err)
	}

	summary.DropsScanned = len(drops)

	for _, drop := range drops {
		created, unmatched, err := s.MatchDrop(ctx, drop, now)
		if err != nil {
			log.Printf("service: matching drop %s failed: %v", drop.ID, err)
			summary.Errors = append(summary.Errors, models.DropRunError{
				DropID: drop.ID,
				Error:  err.Error(),
			})
			continue
		}
		summary.DropsMatched++
		summary.MatchesCreated += created
		summary.Unmatched += unmatched
	}

	span.SetAttributes(
		attribute.Int("matching.drops_scanned", summary.DropsScanned),
		attribute.Int("matching.matches_created", summary.MatchesCreated),
	)

	s.events.PublishMatchingCompleted(ctx, summary)

	return summary, nil
}

// MatchDrop pairs one drop's registrants and persists the matches. Calling
// it for an already-matched drop is a no-op: the store-level claim rejects
// the second writer and nothing is created or notified twice.
func (s *Service) MatchDrop(ctx context.Context, drop models.Drop, now time.Time) (created, unmatched int, err error) {
	regs, err := s.db.ListActiveRegistrations(ctx, drop.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load registrants: %w", err)
	}

	// Profile lookup failures drop the individual registrant, not the run.
	profiles := make([]models.Profile, 0, len(regs))
	byID := make(map[string]models.Profile, len(regs))
	for _, reg := range regs {
		p, err := s.profileFor(ctx, reg.UserID)
		if err != nil {
			log.Printf("service: skipping registrant %s in drop %s: %v", reg.UserID, drop.ID, err)
			continue
		}
		profiles = append(profiles, p)
		byID[p.UserID] = p
	}

	plan := pairing.BuildPlan(profiles, s.defaultCuisine)

	matches := make([]models.Match, 0, len(plan.Pairs))
	for _, pair := range plan.Pairs {
		userA, userB := pair.A.UserID, pair.B.UserID
		if userB < userA {
			userA, userB = userB, userA
		}
		matches = append(matches, models.Match{
			ID:                uuid.New().String(),
			DropID:            drop.ID,
			UserA:             userA,
			UserB:             userB,
			Compatibility:     pair.Score.Score,
			CommonInterests:   sortedCopy(pair.Score.CommonInterests),
			CommonCuisines:    sortedCopy(pair.Score.CommonCuisines),
			CuisinePreference: pair.Cuisine,
			Status:            models.MatchPending,
			Responses:         map[string]models.Response{},
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	// Fewer than two pairable registrants yields zero matches; the drop is
	// still claimed so the scheduler stops rescanning it.
	err = s.db.CreateDropMatches(ctx, drop.ID, matches)
	if errors.Is(err, database.ErrAlreadyMatched) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	for _, m := range matches {
		a, b := byID[m.UserA], byID[m.UserB]
		if s.notifier != nil {
			s.notifier.MatchCreated(ctx, a, b, m)
			s.notifier.MatchCreated(ctx, b, a, m)
		}
		s.events.PublishMatchCreated(ctx, m)
	}

	return len(matches), len(plan.Unmatched), nil
}

// SubmitResponse records one participant's decision on a match and, when the
// outcome becomes final, fires the terminal side effects exactly once.
// Resubmitting after a terminal state is a reported no-op, not an error.
func (s *Service) SubmitResponse(ctx context.Context, dropID, matchID, userID, decision string) (models.SubmitResponseResult, error) {
	if err := validation.ValidateUUID(dropID, "drop_id"); err != nil {
		return models.SubmitResponseResult{}, err
	}
	if err := validation.ValidateUUID(matchID, "match_id"); err != nil {
		return models.SubmitResponseResult{}, err
	}
	if err := validation.ValidateUUID(userID, "user_id"); err != nil {
		return models.SubmitResponseResult{}, err
	}
	parsed, err := validation.ValidateDecision(decision)
	if err != nil {
		return models.SubmitResponseResult{}, err
	}

	m, err := s.db.GetMatch(ctx, matchID)
	if err != nil {
		return models.SubmitResponseResult{}, err
	}
	if m.DropID != dropID {
		return models.SubmitResponseResult{}, database.ErrNotFound
	}
	if !m.HasParticipant(userID) {
		return models.SubmitResponseResult{}, database.ErrNotParticipant
	}

	res, err := s.db.ApplyResponse(ctx, matchID, userID, parsed, time.Now().UTC())
	if err != nil {
		return models.SubmitResponseResult{}, err
	}

	if res.Transition != "" {
		s.finalizeMatch(ctx, res.Match)
	}

	return models.SubmitResponseResult{
		Applied: res.Applied,
		Status:  res.Match.Status,
	}, nil
}

// finalizeMatch runs the terminal side effects for the one call that owned
// the transition: write-once outcome record, per-recipient notifications,
// and the contact-exchange SMS on confirmation. All of it is best-effort;
// the committed transition stands regardless of delivery.
func (s *Service) finalizeMatch(ctx context.Context, m models.Match) {
	outcome := models.Outcome{
		ID:            uuid.New().String(),
		MatchID:       m.ID,
		DropID:        m.DropID,
		UserA:         m.UserA,
		UserB:         m.UserB,
		DecisionA:     decisionOf(m, m.UserA),
		DecisionB:     decisionOf(m, m.UserB),
		Compatibility: m.Compatibility,
		Status:        models.OutcomeUnsuccessful,
		CreatedAt:     time.Now().UTC(),
	}
	if m.Status == models.MatchConfirmed {
		outcome.Status = models.OutcomeSuccessful
	}

	if err := s.db.InsertOutcome(ctx, outcome); err != nil {
		log.Printf("service: failed to record outcome for match %s: %v", m.ID, err)
	}

	profileA, errA := s.profileFor(ctx, m.UserA)
	profileB, errB := s.profileFor(ctx, m.UserB)

	nameA, nameB := m.UserA, m.UserB
	if errA == nil {
		nameA = profileA.DisplayName
	}
	if errB == nil {
		nameB = profileB.DisplayName
	}

	if s.notifier != nil {
		s.notifier.MatchOutcome(ctx, m.UserA, nameB, m)
		s.notifier.MatchOutcome(ctx, m.UserB, nameA, m)

		if m.Status == models.MatchConfirmed && errA == nil && errB == nil {
			s.notifier.ConfirmedSMS(ctx, profileA, profileB, m)
		}
	}

	s.events.PublishMatchResolved(ctx, m, outcome)
}

// GetDropMatches returns all matches for a drop.
func (s *Service) GetDropMatches(ctx context.Context, dropID string) ([]models.Match, error) {
	if err := validation.ValidateUUID(dropID, "drop_id"); err != nil {
		return nil, err
	}
	if _, err := s.db.GetDrop(ctx, dropID); err != nil {
		return nil, err
	}
	return s.db.ListDropMatches(ctx, dropID)
}

// GetUserMatch returns a user's match within a drop.
func (s *Service) GetUserMatch(ctx context.Context, dropID, userID string) (models.Match, error) {
	if err := validation.ValidateUUID(dropID, "drop_id"); err != nil {
		return models.Match{}, err
	}
	if err := validation.ValidateUUID(userID, "user_id"); err != nil {
		return models.Match{}, err
	}
	return s.db.GetUserMatch(ctx, dropID, userID)
}

// PendingSMS exposes the outbox for the external delivery worker.
func (s *Service) PendingSMS(ctx context.Context, limit int) ([]models.SMSMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.db.ListPendingSMS(ctx, limit)
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.flags.IsEnabled(features.FeatureCacheEnabled)
}

// profileFor reads a profile through the cache when enabled.
func (s *Service) profileFor(ctx context.Context, userID string) (models.Profile, error) {
	if !s.cacheEnabled() {
		return s.db.GetProfile(ctx, userID)
	}

	key := cache.ProfileKey(userID)
	var p models.Profile
	if err := cache.GetJSON(ctx, s.cache, key, &p); err == nil {
		return p, nil
	}

	p, err := s.db.GetProfile(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}

	if err := cache.SetJSON(ctx, s.cache, key, p, s.cacheTTL); err != nil {
		log.Printf("service: failed to cache profile %s: %v", userID, err)
	}
	return p, nil
}

func decisionOf(m models.Match, userID string) models.Decision {
	if r, ok := m.Responses[userID]; ok {
		return r.Status
	}
	return models.DecisionPending
}

func sortedCopy(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}
