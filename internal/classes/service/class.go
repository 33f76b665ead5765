package service

import (
	"context"
	"errors"
	"sync"
	"time"

	classerrors "gymbook/internal/classes/errors"
	"gymbook/internal/classes/repository"
	"gymbook/internal/classes/validator"
	membererrors "gymbook/internal/members/errors"
	memberrepo "gymbook/internal/members/repository"
	"gymbook/pkg/config"
	apperrors "gymbook/pkg/errors"
	"gymbook/pkg/model"
	"gymbook/pkg/sanitizer"
)

type ClassService interface {
	Create(ctx context.Context, class *model.Class) error
	GetByID(ctx context.Context, id string) (*model.Class, error)
	List(ctx context.Context, fecha string, limit int, offset int64) ([]*model.Class, int64, error)
	Update(ctx context.Context, id string, updates *model.ClassUpdate) error
	Delete(ctx context.Context, id string) error
	Roster(ctx context.Context, id string) ([]*model.RosterEntry, error)
}

type classService struct {
	repo       repository.ClassRepository
	memberRepo memberrepo.MemberRepository
	validator  *validator.ClassValidator
	cfg        *config.Config
	now        func() time.Time
}

func NewClassService(
	repo repository.ClassRepository,
	memberRepo memberrepo.MemberRepository,
	validator *validator.ClassValidator,
	cfg *config.Config,
) ClassService {
	return &classService{
		repo:       repo,
		memberRepo: memberRepo,
		validator:  validator,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (s *classService) Create(ctx context.Context, class *model.Class) error {
	s.sanitize(class)
	s.applyDefaults(class)

	// A new occurrence starts fully open.
	class.SeatsAvailable = class.Capacity
	class.Enrolled = []string{}
	class.Waitlist = []string{}
	class.Attendance = []string{}

	if err := s.validator.Validate(class); err != nil {
		s.cfg.Log.Warn("Class validation failed",
			"type", class.Type,
			"date", class.Date,
			"error", err,
		)
		return apperrors.Validation("Class validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Create(ctx, class); err != nil {
		s.cfg.Log.Error("Failed to create class",
			"type", class.Type,
			"date", class.Date,
			"error", err,
		)
		return apperrors.Internal("Failed to create class", err)
	}

	s.cfg.Log.Info("Class created successfully",
		"id", class.ID,
		"type", class.Type,
		"date", class.Date,
		"capacity", class.Capacity,
	)
	return nil
}

func (s *classService) GetByID(ctx context.Context, id string) (*model.Class, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Class ID cannot be empty")
	}

	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, classerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Class", id)
		}
		if errors.Is(err, classerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid class ID format")
		}
		s.cfg.Log.Error("Failed to get class by ID",
			"id", id,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve class", err)
	}

	return class, nil
}

// listingRange translates the optional fecha filter into a date window.
// Today means strictly future starts only; a future day means that whole
// day, midnight included; absent means everything from now on.
func listingRange(fecha string, now time.Time) (repository.DateRange, error) {
	if fecha == "" {
		return repository.DateRange{From: &now}, nil
	}

	day, parseErr := time.ParseInLocation("2006-01-02", fecha, now.Location())
	if parseErr != nil {
		return repository.DateRange{}, apperrors.InvalidInput("fecha must be in YYYY-MM-DD format")
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if dayStart.Equal(today) {
		return repository.DateRange{After: &now, To: &dayEnd}, nil
	}
	return repository.DateRange{From: &dayStart, To: &dayEnd}, nil
}

func (s *classService) List(ctx context.Context, fecha string, limit int, offset int64) ([]*model.Class, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	rng, err := listingRange(fecha, s.now())
	if err != nil {
		return nil, 0, err
	}

	sharedCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var count int64
	var classes []*model.Class
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.CountInRange(sharedCtx, rng)
		if err != nil {
			s.cfg.Log.Error("Failed to count classes", "fecha", fecha, "error", err)
			errCount = apperrors.Internal("Failed to count classes", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		classes, err = s.repo.FindInRange(sharedCtx, rng, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to list classes",
				"fecha", fecha,
				"limit", limit,
				"offset", offset,
				"error", err,
			)
			errFind = apperrors.Internal("Failed to retrieve classes", err)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return classes, count, nil
}

func (s *classService) Update(ctx context.Context, id string, updates *model.ClassUpdate) error {
	if id == "" {
		return apperrors.InvalidInput("Class ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, classerrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Class", id)
		}
		if errors.Is(err, classerrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid class ID format")
		}
		return apperrors.Internal("Failed to check class existence", err)
	}

	s.sanitizeUpdate(updates)
	merged := s.mergeClassUpdates(existing, updates)
	if err := s.validator.Validate(merged); err != nil {
		s.cfg.Log.Warn("Class validation failed",
			"id", id,
			"type", merged.Type,
			"error", err,
		)
		return apperrors.Validation("Class validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Update(ctx, id, merged); err != nil {
		if errors.Is(err, classerrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Class", id)
		}
		s.cfg.Log.Error("Failed to update class",
			"id", id,
			"error", err,
		)
		return apperrors.Internal("Failed to update class", err)
	}

	s.cfg.Log.Info("Class updated successfully", "id", id, "type", merged.Type)
	return nil
}

// Delete removes the occurrence and strips it from every member ledger that
// references it, in one transaction. Seats, waitlist positions and credits
// already spent are simply gone; credits are not refunded on class deletion.
func (s *classService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Class ID cannot be empty")
	}

	var touched int64
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Delete(txCtx, id); err != nil {
			if errors.Is(err, classerrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Class", id)
			}
			if errors.Is(err, classerrors.ErrInvalidID) {
				return apperrors.InvalidInput("Invalid class ID format")
			}
			s.cfg.Log.Error("Failed to delete class",
				"id", id,
				"error", err,
			)
			return apperrors.Internal("Failed to delete class", err)
		}

		n, err := s.memberRepo.RemoveAssignedClassFromAll(txCtx, id)
		if err != nil {
			s.cfg.Log.Error("Failed to cascade class deletion into member ledgers",
				"id", id,
				"error", err,
			)
			return apperrors.Internal("Failed to cascade class deletion", err)
		}
		touched = n
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Class deleted successfully", "id", id, "members_updated", touched)
	return nil
}

// Roster joins the enrolled list with member display fields, in enrollment
// order. Members whose ledger no longer resolves are listed by id only.
func (s *classService) Roster(ctx context.Context, id string) ([]*model.RosterEntry, error) {
	class, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	members, err := s.memberRepo.FindByIDs(ctx, class.Enrolled)
	if err != nil && !errors.Is(err, membererrors.ErrNotFound) {
		s.cfg.Log.Error("Failed to load roster members",
			"class_id", id,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to load class roster", err)
	}

	byID := make(map[string]*model.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	roster := make([]*model.RosterEntry, 0, len(class.Enrolled))
	for _, memberID := range class.Enrolled {
		entry := &model.RosterEntry{
			MemberID:  memberID,
			CheckedIn: class.HasCheckedIn(memberID),
		}
		if m, ok := byID[memberID]; ok {
			entry.Name = m.Name
			entry.Email = m.Email
		}
		roster = append(roster, entry)
	}

	return roster, nil
}

func (s *classService) sanitize(class *model.Class) {
	class.Type = sanitizer.NormalizeClassType(class.Type)
	class.DayOfWeek = sanitizer.TrimAndNormalize(class.DayOfWeek)
	class.StartTime = sanitizer.TrimAndNormalize(class.StartTime)
	class.EndTime = sanitizer.TrimAndNormalize(class.EndTime)
}

func (s *classService) sanitizeUpdate(updates *model.ClassUpdate) {
	if updates.Type != "" {
		updates.Type = sanitizer.NormalizeClassType(updates.Type)
	}
	if updates.DayOfWeek != "" {
		updates.DayOfWeek = sanitizer.TrimAndNormalize(updates.DayOfWeek)
	}
	if updates.StartTime != "" {
		updates.StartTime = sanitizer.TrimAndNormalize(updates.StartTime)
	}
	if updates.EndTime != "" {
		updates.EndTime = sanitizer.TrimAndNormalize(updates.EndTime)
	}
}

func (s *classService) applyDefaults(class *model.Class) {
	if class.Capacity == 0 {
		class.Capacity = s.cfg.DefaultClassCapacity
	}
	if class.DayOfWeek == "" && !class.Date.IsZero() {
		class.DayOfWeek = class.Date.Weekday().String()
	}
}

// mergeClassUpdates only touches schedule fields. Capacity changes adjust
// seats_available by the same delta so the seat invariant holds; a shrink
// below the current enrollment count is rejected by validation.
func (s *classService) mergeClassUpdates(existing *model.Class, updates *model.ClassUpdate) *model.Class {
	merged := *existing

	if updates.Type != "" {
		merged.Type = updates.Type
	}
	if updates.DayOfWeek != "" {
		merged.DayOfWeek = updates.DayOfWeek
	}
	if updates.StartTime != "" {
		merged.StartTime = updates.StartTime
	}
	if updates.EndTime != "" {
		merged.EndTime = updates.EndTime
	}
	if updates.Date != nil {
		merged.Date = *updates.Date
	}
	if updates.Capacity != nil {
		delta := *updates.Capacity - existing.Capacity
		merged.Capacity = *updates.Capacity
		merged.SeatsAvailable = existing.SeatsAvailable + delta
	}

	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt
	return &merged
}
