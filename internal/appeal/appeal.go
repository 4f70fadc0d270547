// Package appeal implements the human review path for automatic geofence
// rejections: a worker submits one appeal per rejected record, a supervisor
// decides it, and an approval reinstates the underlying entity.
package appeal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadim/fieldsync/internal/models"
	"github.com/nadim/fieldsync/internal/workflow"
)

var (
	// ErrNotAppealable means the target entity is not in a rejected state.
	ErrNotAppealable = errors.New("entity is not in a rejected state")
	// ErrAlreadyAppealed means the entity already has an appeal on file.
	ErrAlreadyAppealed = errors.New("entity already has an appeal")
	// ErrAlreadyReviewed means the appeal has left the pending state.
	ErrAlreadyReviewed = errors.New("appeal already reviewed")
	// ErrNotFound means no matching appeal or entity exists.
	ErrNotFound = errors.New("not found")
)

// Store is the persistence surface the appeal service needs. Entity lookups
// return (nil, nil) when no row matches, matching the sync coordinator's
// store contract.
type Store interface {
	EntityByServerID(ctx context.Context, kind models.EntityKind, serverID int64) (*models.Entity, error)
	UpdateEntity(ctx context.Context, e *models.Entity, expectVersion int) (bool, error)
	CreateAppeal(ctx context.Context, a *models.Appeal) (int64, error)
	AppealByID(ctx context.Context, id int64) (*models.Appeal, error)
	AppealByEntity(ctx context.Context, kind models.EntityKind, entityID int64) (*models.Appeal, error)
	UpdateAppeal(ctx context.Context, a *models.Appeal) error
}

// Service coordinates appeal submission and review.
type Service struct {
	store      Store
	tasks      *workflow.Machine
	attendance *workflow.Machine
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		tasks:      workflow.TaskMachine(),
		attendance: workflow.AttendanceMachine(),
		logger:     logger,
		now:        time.Now,
	}
}

// Submit files an appeal against a rejected task or attendance record.
// Exactly one appeal may exist per entity, regardless of its outcome.
func (s *Service) Submit(ctx context.Context, kind models.EntityKind, entityID, workerID int64, explanation, evidenceURL string) (*models.Appeal, error) {
	if kind != models.KindTask && kind != models.KindAttendance {
		return nil, fmt.Errorf("%s records are not appealable", kind)
	}
	if explanation == "" {
		return nil, errors.New("explanation required")
	}

	e, err := s.store.EntityByServerID(ctx, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("load entity: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("%s %d: %w", kind, entityID, ErrNotFound)
	}
	if !rejected(e) {
		return nil, fmt.Errorf("%s %d in state %s: %w", kind, entityID, e.State, ErrNotAppealable)
	}

	existing, err := s.store.AppealByEntity(ctx, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("check existing appeal: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s %d: %w", kind, entityID, ErrAlreadyAppealed)
	}

	a := &models.Appeal{
		EntityKind:  kind,
		EntityID:    entityID,
		WorkerID:    workerID,
		Explanation: explanation,
		EvidenceURL: evidenceURL,
		Status:      models.AppealPending,
		SubmittedAt: s.now().UTC(),
	}
	id, err := s.store.CreateAppeal(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("create appeal: %w", err)
	}
	a.ID = id
	s.logger.Info("appeal submitted", "appeal_id", id, "kind", kind, "entity_id", entityID, "worker_id", workerID)
	return a, nil
}

// Review records a supervisor decision on a pending appeal. Approval
// reinstates the underlying entity to its approved state; rejection leaves
// it untouched. The appeal is immutable afterwards.
func (s *Service) Review(ctx context.Context, appealID, reviewerID int64, approve bool, notes string) (*models.Appeal, error) {
	a, err := s.store.AppealByID(ctx, appealID)
	if err != nil {
		return nil, fmt.Errorf("load appeal: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("appeal %d: %w", appealID, ErrNotFound)
	}
	if a.Status != models.AppealPending {
		return nil, fmt.Errorf("appeal %d is %s: %w", appealID, a.Status, ErrAlreadyReviewed)
	}

	if approve {
		if err := s.reinstate(ctx, a); err != nil {
			return nil, err
		}
		a.Status = models.AppealApproved
	} else {
		a.Status = models.AppealRejected
	}
	now := s.now().UTC()
	a.ReviewedBy = reviewerID
	a.ReviewNotes = notes
	a.ReviewedAt = &now

	if err := s.store.UpdateAppeal(ctx, a); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}
	s.logger.Info("appeal reviewed", "appeal_id", a.ID, "status", a.Status, "reviewer_id", reviewerID)
	return a, nil
}

// reinstate forces the rejected entity into its approved state.
func (s *Service) reinstate(ctx context.Context, a *models.Appeal) error {
	e, err := s.store.EntityByServerID(ctx, a.EntityKind, a.EntityID)
	if err != nil {
		return fmt.Errorf("load entity: %w", err)
	}
	if e == nil {
		return fmt.Errorf("%s %d: %w", a.EntityKind, a.EntityID, ErrNotFound)
	}
	if !rejected(e) {
		// A supervisor may have already acted on the record directly.
		return fmt.Errorf("%s %d in state %s: %w", a.EntityKind, a.EntityID, e.State, ErrNotAppealable)
	}

	machine := s.tasks
	target := string(models.TaskApproved)
	if a.EntityKind == models.KindAttendance {
		machine = s.attendance
		target = string(models.AttendanceApproved)
	}

	updated := e.Clone()
	if err := machine.Transition(updated, target, true); err != nil {
		return fmt.Errorf("reinstate: %w", err)
	}
	updated.Payload[models.FieldValidationMessage] = fmt.Sprintf("reinstated by appeal %d", a.ID)
	updated.Version = e.Version + 1
	updated.UpdatedAt = s.now().UTC()

	ok, err := s.store.UpdateEntity(ctx, updated, e.Version)
	if err != nil {
		return fmt.Errorf("save reinstated entity: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s %d changed concurrently during reinstatement", a.EntityKind, a.EntityID)
	}
	return nil
}

func rejected(e *models.Entity) bool {
	switch e.Kind {
	case models.KindTask:
		return e.State == string(models.TaskRejected)
	case models.KindAttendance:
		return e.State == string(models.AttendanceRejected)
	}
	return false
}
