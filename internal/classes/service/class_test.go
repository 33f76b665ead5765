package service

import (
	"context"
	"testing"
	"time"

	classerrors "gymbook/internal/classes/errors"
	"gymbook/internal/classes/repository"
	"gymbook/internal/classes/validator"
	"gymbook/pkg/config"
	mongotx "gymbook/pkg/db/mongo"
	apperrors "gymbook/pkg/errors"
	"gymbook/pkg/logger"
	"gymbook/pkg/model"
)

// Mock repositories for testing
type mockClassRepository struct {
	createFunc       func(ctx context.Context, class *model.Class) error
	findByIDFunc     func(ctx context.Context, id string) (*model.Class, error)
	findInRangeFunc  func(ctx context.Context, rng repository.DateRange, limit int, offset int64) ([]*model.Class, error)
	countInRangeFunc func(ctx context.Context, rng repository.DateRange) (int64, error)
	updateFunc       func(ctx context.Context, id string, class *model.Class) error
	deleteFunc       func(ctx context.Context, id string) error
}

func (m *mockClassRepository) Create(ctx context.Context, class *model.Class) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, class)
	}
	return nil
}

func (m *mockClassRepository) FindByID(ctx context.Context, id string) (*model.Class, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, classerrors.ErrNotFound
}

func (m *mockClassRepository) FindInRange(ctx context.Context, rng repository.DateRange, limit int, offset int64) ([]*model.Class, error) {
	if m.findInRangeFunc != nil {
		return m.findInRangeFunc(ctx, rng, limit, offset)
	}
	return []*model.Class{}, nil
}

func (m *mockClassRepository) CountInRange(ctx context.Context, rng repository.DateRange) (int64, error) {
	if m.countInRangeFunc != nil {
		return m.countInRangeFunc(ctx, rng)
	}
	return 0, nil
}

func (m *mockClassRepository) Update(ctx context.Context, id string, class *model.Class) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, class)
	}
	return nil
}

func (m *mockClassRepository) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockClassRepository) AddEnrollment(ctx context.Context, classID, memberID string) error {
	return nil
}

func (m *mockClassRepository) RemoveEnrollment(ctx context.Context, classID, memberID string) error {
	return nil
}

func (m *mockClassRepository) AppendWaitlist(ctx context.Context, classID, memberID string) error {
	return nil
}

func (m *mockClassRepository) RemoveFromWaitlist(ctx context.Context, classID, memberID string) error {
	return nil
}

func (m *mockClassRepository) PromoteWaitlistHead(ctx context.Context, classID, memberID string) error {
	return nil
}

func (m *mockClassRepository) AddAttendance(ctx context.Context, classID, memberID string) error {
	return nil
}

func (m *mockClassRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

type mockMemberRepository struct {
	findByIDsFunc     func(ctx context.Context, ids []string) ([]*model.Member, error)
	removeFromAllFunc func(ctx context.Context, classID string) (int64, error)
}

func (m *mockMemberRepository) Create(ctx context.Context, member *model.Member) error {
	return nil
}

func (m *mockMemberRepository) FindByID(ctx context.Context, id string) (*model.Member, error) {
	return nil, nil
}

func (m *mockMemberRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Member, error) {
	if m.findByIDsFunc != nil {
		return m.findByIDsFunc(ctx, ids)
	}
	return []*model.Member{}, nil
}

func (m *mockMemberRepository) AdjustCredits(ctx context.Context, id string, delta int) error {
	return nil
}

func (m *mockMemberRepository) AddAssignedClass(ctx context.Context, id, classID string) error {
	return nil
}

func (m *mockMemberRepository) RemoveAssignedClass(ctx context.Context, id, classID string) error {
	return nil
}

func (m *mockMemberRepository) AppendAttendance(ctx context.Context, id string, entry model.AttendanceEntry) error {
	return nil
}

func (m *mockMemberRepository) RemoveAssignedClassFromAll(ctx context.Context, classID string) (int64, error) {
	if m.removeFromAllFunc != nil {
		return m.removeFromAllFunc(ctx, classID)
	}
	return 0, nil
}

func (m *mockMemberRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

func testConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:     "error",
			Format:    logger.JSON,
			AddSource: false,
			Service:   "test",
		}),
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         5 * time.Second,
		DefaultClassCapacity: 20,
	}
}

func newTestService(repo *mockClassRepository, memberRepo *mockMemberRepository, now time.Time) *classService {
	cfg := testConfig()
	return &classService{
		repo:       repo,
		memberRepo: memberRepo,
		validator:  validator.NewClassValidator(cfg.Log),
		cfg:        cfg,
		now:        func() time.Time { return now },
	}
}

func TestListingRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		fecha     string
		wantAfter *time.Time
		wantFrom  *time.Time
		wantTo    *time.Time
		wantErr   bool
	}{
		{
			name:     "absent fecha lists everything from now on",
			fecha:    "",
			wantFrom: &now,
		},
		{
			name:      "today excludes classes already started",
			fecha:     "2026-03-10",
			wantAfter: &now,
			wantTo:    ptrTime(today.AddDate(0, 0, 1)),
		},
		{
			name:     "future day covers the whole day from midnight",
			fecha:    "2026-03-15",
			wantFrom: ptrTime(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)),
			wantTo:   ptrTime(time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:    "malformed fecha is rejected",
			fecha:   "15-03-2026",
			wantErr: true,
		},
		{
			name:    "garbage fecha is rejected",
			fecha:   "not-a-date",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := listingRange(tt.fecha, now)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
					t.Errorf("expected INVALID_INPUT, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !equalTimePtr(rng.After, tt.wantAfter) {
				t.Errorf("after = %v, want %v", rng.After, tt.wantAfter)
			}
			if !equalTimePtr(rng.From, tt.wantFrom) {
				t.Errorf("from = %v, want %v", rng.From, tt.wantFrom)
			}
			if !equalTimePtr(rng.To, tt.wantTo) {
				t.Errorf("to = %v, want %v", rng.To, tt.wantTo)
			}
		})
	}
}

func TestCreate_NewClassStartsFullyOpen(t *testing.T) {
	var created *model.Class
	repo := &mockClassRepository{
		createFunc: func(ctx context.Context, class *model.Class) error {
			created = class
			return nil
		},
	}
	svc := newTestService(repo, &mockMemberRepository{}, time.Now())

	class := &model.Class{
		Type:      " Pilates ",
		StartTime: "09:00",
		EndTime:   "10:00",
		Date:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Capacity:  15,
		// Stale caller-supplied state must be discarded.
		SeatsAvailable: 3,
		Enrolled:       []string{"someone"},
	}

	if err := svc.Create(context.Background(), class); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created == nil {
		t.Fatal("repository Create was not called")
	}
	if created.Type != "pilates" {
		t.Errorf("type = %q, want normalized %q", created.Type, "pilates")
	}
	if created.SeatsAvailable != 15 {
		t.Errorf("seats_available = %d, want capacity %d", created.SeatsAvailable, 15)
	}
	if len(created.Enrolled) != 0 || len(created.Waitlist) != 0 || len(created.Attendance) != 0 {
		t.Error("new class must start with empty enrollment, waitlist and attendance")
	}
	if created.DayOfWeek != "Wednesday" {
		t.Errorf("day_of_week = %q, want derived %q", created.DayOfWeek, "Wednesday")
	}
}

func TestCreate_DefaultCapacity(t *testing.T) {
	var created *model.Class
	repo := &mockClassRepository{
		createFunc: func(ctx context.Context, class *model.Class) error {
			created = class
			return nil
		},
	}
	svc := newTestService(repo, &mockMemberRepository{}, time.Now())

	class := &model.Class{
		Type:      "zumba",
		StartTime: "18:00",
		EndTime:   "19:00",
		Date:      time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC),
	}

	if err := svc.Create(context.Background(), class); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Capacity != 20 {
		t.Errorf("capacity = %d, want default %d", created.Capacity, 20)
	}
	if created.SeatsAvailable != 20 {
		t.Errorf("seats_available = %d, want %d", created.SeatsAvailable, 20)
	}
}

func TestCreate_InvalidType(t *testing.T) {
	svc := newTestService(&mockClassRepository{}, &mockMemberRepository{}, time.Now())

	class := &model.Class{
		Type:      "crossfit",
		StartTime: "09:00",
		EndTime:   "10:00",
		Date:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Capacity:  10,
	}

	err := svc.Create(context.Background(), class)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestUpdate_CapacityChangeAdjustsSeats(t *testing.T) {
	existing := &model.Class{
		ID:             "507f1f77bcf86cd799439011",
		Type:           "functional",
		DayOfWeek:      "Monday",
		StartTime:      "07:00",
		EndTime:        "08:00",
		Date:           time.Date(2026, 4, 6, 7, 0, 0, 0, time.UTC),
		Capacity:       10,
		SeatsAvailable: 4,
		Enrolled:       []string{"a", "b", "c", "d", "e", "f"},
		Waitlist:       []string{},
		Attendance:     []string{},
	}

	var updated *model.Class
	repo := &mockClassRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Class, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, id string, class *model.Class) error {
			updated = class
			return nil
		},
	}
	svc := newTestService(repo, &mockMemberRepository{}, time.Now())

	newCapacity := 12
	err := svc.Update(context.Background(), existing.ID, &model.ClassUpdate{Capacity: &newCapacity})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Capacity != 12 {
		t.Errorf("capacity = %d, want 12", updated.Capacity)
	}
	if updated.SeatsAvailable != 6 {
		t.Errorf("seats_available = %d, want 6 (grew with capacity)", updated.SeatsAvailable)
	}
}

func TestUpdate_CapacityBelowEnrollmentRejected(t *testing.T) {
	existing := &model.Class{
		ID:             "507f1f77bcf86cd799439011",
		Type:           "functional",
		DayOfWeek:      "Monday",
		StartTime:      "07:00",
		EndTime:        "08:00",
		Date:           time.Date(2026, 4, 6, 7, 0, 0, 0, time.UTC),
		Capacity:       10,
		SeatsAvailable: 4,
		Enrolled:       []string{"a", "b", "c", "d", "e", "f"},
	}

	repo := &mockClassRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Class, error) {
			return existing, nil
		},
	}
	svc := newTestService(repo, &mockMemberRepository{}, time.Now())

	newCapacity := 5
	err := svc.Update(context.Background(), existing.ID, &model.ClassUpdate{Capacity: &newCapacity})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestDelete_CascadesIntoMemberLedgers(t *testing.T) {
	var cascadedClassID string
	repo := &mockClassRepository{}
	memberRepo := &mockMemberRepository{
		removeFromAllFunc: func(ctx context.Context, classID string) (int64, error) {
			cascadedClassID = classID
			return 3, nil
		},
	}
	svc := newTestService(repo, memberRepo, time.Now())

	if err := svc.Delete(context.Background(), "507f1f77bcf86cd799439011"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cascadedClassID != "507f1f77bcf86cd799439011" {
		t.Errorf("cascade touched class %q, want %q", cascadedClassID, "507f1f77bcf86cd799439011")
	}
}

func TestDelete_NotFoundSkipsCascade(t *testing.T) {
	cascadeCalled := false
	repo := &mockClassRepository{
		deleteFunc: func(ctx context.Context, id string) error {
			return classerrors.ErrNotFound
		},
	}
	memberRepo := &mockMemberRepository{
		removeFromAllFunc: func(ctx context.Context, classID string) (int64, error) {
			cascadeCalled = true
			return 0, nil
		},
	}
	svc := newTestService(repo, memberRepo, time.Now())

	err := svc.Delete(context.Background(), "507f1f77bcf86cd799439011")
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if cascadeCalled {
		t.Error("cascade must not run when the class does not exist")
	}
}

func TestRoster_JoinsMemberDetailsInEnrollmentOrder(t *testing.T) {
	repo := &mockClassRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Class, error) {
			return &model.Class{
				ID:         id,
				Enrolled:   []string{"m1", "m2", "m3"},
				Attendance: []string{"m2"},
			}, nil
		},
	}
	memberRepo := &mockMemberRepository{
		findByIDsFunc: func(ctx context.Context, ids []string) ([]*model.Member, error) {
			// m3's ledger no longer resolves
			return []*model.Member{
				{ID: "m2", Name: "Bea", Email: "bea@example.com"},
				{ID: "m1", Name: "Ana", Email: "ana@example.com"},
			}, nil
		},
	}
	svc := newTestService(repo, memberRepo, time.Now())

	roster, err := svc.Roster(context.Background(), "507f1f77bcf86cd799439011")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(roster) != 3 {
		t.Fatalf("roster size = %d, want 3", len(roster))
	}
	if roster[0].MemberID != "m1" || roster[0].Name != "Ana" || roster[0].CheckedIn {
		t.Errorf("entry 0 = %+v, want m1/Ana/not checked in", roster[0])
	}
	if roster[1].MemberID != "m2" || !roster[1].CheckedIn {
		t.Errorf("entry 1 = %+v, want m2 checked in", roster[1])
	}
	if roster[2].MemberID != "m3" || roster[2].Name != "" {
		t.Errorf("entry 2 = %+v, want bare m3", roster[2])
	}
}

func TestList_InvalidFecha(t *testing.T) {
	svc := newTestService(&mockClassRepository{}, &mockMemberRepository{}, time.Now())

	_, _, err := svc.List(context.Background(), "tomorrow", 10, 0)
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
