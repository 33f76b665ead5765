package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	classerrors "gymbook/internal/classes/errors"
	"gymbook/internal/classes/repository"
	membererrors "gymbook/internal/members/errors"
	"gymbook/pkg/config"
	mongotx "gymbook/pkg/db/mongo"
	apperrors "gymbook/pkg/errors"
	"gymbook/pkg/logger"
	"gymbook/pkg/model"
)

// fakeStore is a stateful in-memory stand-in for both repositories. Its
// conditional updates mirror the Mongo filters, so the engine's behavior
// under contention can be exercised without a database.
type fakeStore struct {
	mu      sync.Mutex
	classes map[string]*model.Class
	members map[string]*model.Member
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		classes: make(map[string]*model.Class),
		members: make(map[string]*model.Member),
	}
}

func (s *fakeStore) addClass(class *model.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[class.ID] = class
}

func (s *fakeStore) addMember(member *model.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[member.ID] = member
}

func (s *fakeStore) class(id string) model.Class {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.classes[id]
}

func (s *fakeStore) member(id string) model.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.members[id]
}

type fakeClassRepo struct {
	store *fakeStore
}

func (r *fakeClassRepo) Create(ctx context.Context, class *model.Class) error {
	r.store.addClass(class)
	return nil
}

func (r *fakeClassRepo) FindByID(ctx context.Context, id string) (*model.Class, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	class, ok := r.store.classes[id]
	if !ok {
		return nil, classerrors.ErrNotFound
	}
	copied := *class
	copied.Enrolled = append([]string(nil), class.Enrolled...)
	copied.Waitlist = append([]string(nil), class.Waitlist...)
	copied.Attendance = append([]string(nil), class.Attendance...)
	return &copied, nil
}

func (r *fakeClassRepo) FindInRange(ctx context.Context, rng repository.DateRange, limit int, offset int64) ([]*model.Class, error) {
	return nil, nil
}

func (r *fakeClassRepo) CountInRange(ctx context.Context, rng repository.DateRange) (int64, error) {
	return 0, nil
}

func (r *fakeClassRepo) Update(ctx context.Context, id string, class *model.Class) error {
	return nil
}

func (r *fakeClassRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.classes, id)
	return nil
}

func (r *fakeClassRepo) AddEnrollment(ctx context.Context, classID, memberID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	class, ok := r.store.classes[classID]
	if !ok || class.SeatsAvailable <= 0 || contains(class.Enrolled, memberID) || contains(class.Waitlist, memberID) {
		return classerrors.ErrNoSeats
	}
	class.Enrolled = append(class.Enrolled, memberID)
	class.SeatsAvailable--
	return nil
}

func (r *fakeClassRepo) RemoveEnrollment(ctx context.Context, classID, memberID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	class, ok := r.store.classes[classID]
	if !ok || !contains(class.Enrolled, memberID) {
		return classerrors.ErrNotEnrolled
	}
	class.Enrolled = remove(class.Enrolled, memberID)
	class.Attendance = remove(class.Attendance, memberID)
	class.SeatsAvailable++
	return nil
}

func (r *fakeClassRepo) AppendWaitlist(ctx context.Context, classID, memberID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	class, ok := r.store.classes[classID]
	if !ok || contains(class.Enrolled, memberID) || contains(class.Waitlist, memberID) {
		return classerrors.ErrAlreadyQueued
	}
	class.Waitlist = append(class.Waitlist, memberID)
	return nil
}

func (r *fakeClassRepo) RemoveFromWaitlist(ctx context.Context, classID, memberID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	class, ok := r.store.classes[classID]
	if !ok {
		return classerrors.ErrNotFound
	}
	class.Waitlist = remove(class.Waitlist, memberID)
	return nil
}

func (r *fakeClassRepo) PromoteWaitlistHead(ctx context.Context, classID, memberID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	class, ok := r.store.classes[classID]
	if !ok || len(class.Waitlist) == 0 || class.Waitlist[0] != memberID || class.SeatsAvailable <= 0 {
		return classerrors.ErrWaitlistChanged
	}
	class.Waitlist = class.Waitlist[1:]
	class.Enrolled = append(class.Enrolled, memberID)
	class.SeatsAvailable--
	return nil
}

func (r *fakeClassRepo) AddAttendance(ctx context.Context, classID, memberID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	class, ok := r.store.classes[classID]
	if !ok || !contains(class.Enrolled, memberID) || contains(class.Attendance, memberID) {
		return classerrors.ErrNotEnrolled
	}
	class.Attendance = append(class.Attendance, memberID)
	return nil
}

func (r *fakeClassRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

type fakeMemberRepo struct {
	store *fakeStore
}

func (r *fakeMemberRepo) Create(ctx context.Context, member *model.Member) error {
	r.store.addMember(member)
	return nil
}

func (r *fakeMemberRepo) FindByID(ctx context.Context, id string) (*model.Member, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	member, ok := r.store.members[id]
	if !ok {
		return nil, membererrors.ErrNotFound
	}
	copied := *member
	copied.EligibleClassTypes = append([]string(nil), member.EligibleClassTypes...)
	copied.AssignedClasses = append([]string(nil), member.AssignedClasses...)
	return &copied, nil
}

func (r *fakeMemberRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Member, error) {
	return nil, nil
}

func (r *fakeMemberRepo) AdjustCredits(ctx context.Context, id string, delta int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	member, ok := r.store.members[id]
	if !ok {
		return membererrors.ErrNotFound
	}
	if delta < 0 && member.CancellationCredits < -delta {
		return membererrors.ErrInsufficientCredit
	}
	member.CancellationCredits += delta
	return nil
}

func (r *fakeMemberRepo) AddAssignedClass(ctx context.Context, id, classID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	member, ok := r.store.members[id]
	if !ok {
		return membererrors.ErrNotFound
	}
	if !contains(member.AssignedClasses, classID) {
		member.AssignedClasses = append(member.AssignedClasses, classID)
	}
	return nil
}

func (r *fakeMemberRepo) RemoveAssignedClass(ctx context.Context, id, classID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	member, ok := r.store.members[id]
	if !ok {
		return membererrors.ErrNotFound
	}
	member.AssignedClasses = remove(member.AssignedClasses, classID)
	return nil
}

func (r *fakeMemberRepo) AppendAttendance(ctx context.Context, id string, entry model.AttendanceEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	member, ok := r.store.members[id]
	if !ok {
		return membererrors.ErrNotFound
	}
	member.AttendanceHistory = append(member.AttendanceHistory, entry)
	return nil
}

func (r *fakeMemberRepo) RemoveAssignedClassFromAll(ctx context.Context, classID string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, member := range r.store.members {
		if contains(member.AssignedClasses, classID) {
			member.AssignedClasses = remove(member.AssignedClasses, classID)
			n++
		}
	}
	return n, nil
}

func (r *fakeMemberRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func newEngine(store *fakeStore, now time.Time) *reservationService {
	cfg := &config.Config{
		Log: logger.New(logger.Config{
			Level:     "error",
			Format:    logger.JSON,
			AddSource: false,
			Service:   "test",
		}),
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
		LateCancelWindow: 3 * time.Hour,
	}
	return &reservationService{
		classRepo:  &fakeClassRepo{store: store},
		memberRepo: &fakeMemberRepo{store: store},
		publisher:  nil,
		locker:     newClassLocker(),
		cfg:        cfg,
		now:        func() time.Time { return now },
	}
}

func seedClass(store *fakeStore, id string, capacity int) {
	store.addClass(&model.Class{
		ID:             id,
		Type:           "pilates",
		Date:           time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC),
		Capacity:       capacity,
		SeatsAvailable: capacity,
		Enrolled:       []string{},
		Waitlist:       []string{},
		Attendance:     []string{},
	})
}

func seedMember(store *fakeStore, id string, credits int) {
	store.addMember(&model.Member{
		ID:                  id,
		Name:                "Member " + id,
		Email:               id + "@example.com",
		EligibleClassTypes:  []string{"pilates"},
		CancellationCredits: credits,
		AssignedClasses:     []string{},
	})
}

func TestEnroll_ConfirmedDebitsOneCredit(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 5)
	seedMember(store, "m1", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	result, err := engine.Enroll(context.Background(), "c1", "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusConfirmed {
		t.Fatalf("status = %q, want confirmed", result.Status)
	}

	class := store.class("c1")
	if class.SeatsAvailable != 4 {
		t.Errorf("seats_available = %d, want 4", class.SeatsAvailable)
	}
	if !contains(class.Enrolled, "m1") {
		t.Error("member missing from enrolled list")
	}

	member := store.member("m1")
	if member.CancellationCredits != 1 {
		t.Errorf("credits = %d, want 1", member.CancellationCredits)
	}
	if !contains(member.AssignedClasses, "c1") {
		t.Error("class missing from assigned_classes")
	}
}

func TestEnroll_ErrorOrdering(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		seed     func(store *fakeStore)
		classID  string
		memberID string
		wantCode string
	}{
		{
			name:     "unknown class",
			seed:     func(store *fakeStore) { seedMember(store, "m1", 2) },
			classID:  "missing",
			memberID: "m1",
			wantCode: apperrors.CodeNotFound,
		},
		{
			name:     "unknown member",
			seed:     func(store *fakeStore) { seedClass(store, "c1", 5) },
			classID:  "c1",
			memberID: "missing",
			wantCode: apperrors.CodeNotFound,
		},
		{
			name: "ineligible class type",
			seed: func(store *fakeStore) {
				seedClass(store, "c1", 5)
				store.addMember(&model.Member{
					ID:                  "m1",
					EligibleClassTypes:  []string{"zumba"},
					CancellationCredits: 2,
				})
			},
			classID:  "c1",
			memberID: "m1",
			wantCode: apperrors.CodeNotEligible,
		},
		{
			name: "ineligibility reported before missing credit",
			seed: func(store *fakeStore) {
				seedClass(store, "c1", 5)
				store.addMember(&model.Member{
					ID:                  "m1",
					EligibleClassTypes:  []string{"zumba"},
					CancellationCredits: 0,
				})
			},
			classID:  "c1",
			memberID: "m1",
			wantCode: apperrors.CodeNotEligible,
		},
		{
			name: "zero credits",
			seed: func(store *fakeStore) {
				seedClass(store, "c1", 5)
				seedMember(store, "m1", 0)
			},
			classID:  "c1",
			memberID: "m1",
			wantCode: apperrors.CodeNoCredit,
		},
		{
			name: "already enrolled",
			seed: func(store *fakeStore) {
				seedClass(store, "c1", 5)
				seedMember(store, "m1", 2)
			},
			classID:  "c1",
			memberID: "m1",
			wantCode: apperrors.CodeAlreadyEnrolled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			tt.seed(store)
			engine := newEngine(store, now)

			if tt.wantCode == apperrors.CodeAlreadyEnrolled {
				if _, err := engine.Enroll(context.Background(), tt.classID, tt.memberID); err != nil {
					t.Fatalf("setup enroll failed: %v", err)
				}
			}

			_, err := engine.Enroll(context.Background(), tt.classID, tt.memberID)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !apperrors.IsCode(err, tt.wantCode) {
				t.Errorf("error code = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestEnroll_FullClassQueuesFIFO(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 1)
	seedMember(store, "m1", 2)
	seedMember(store, "m2", 2)
	seedMember(store, "m3", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	ctx := context.Background()
	if _, err := engine.Enroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("first enroll failed: %v", err)
	}

	r2, err := engine.Enroll(ctx, "c1", "m2")
	if err != nil {
		t.Fatalf("second enroll failed: %v", err)
	}
	if r2.Status != StatusQueued || r2.WaitlistPosition != 1 {
		t.Errorf("m2 result = %+v, want queued at position 1", r2)
	}

	r3, err := engine.Enroll(ctx, "c1", "m3")
	if err != nil {
		t.Fatalf("third enroll failed: %v", err)
	}
	if r3.Status != StatusQueued || r3.WaitlistPosition != 2 {
		t.Errorf("m3 result = %+v, want queued at position 2", r3)
	}

	// Queuing costs nothing.
	if store.member("m2").CancellationCredits != 2 {
		t.Errorf("m2 credits = %d, want 2 (queuing must not debit)", store.member("m2").CancellationCredits)
	}

	_, err = engine.Enroll(ctx, "c1", "m2")
	if !apperrors.IsCode(err, apperrors.CodeAlreadyWaitlist) {
		t.Errorf("re-enroll while queued = %v, want ALREADY_WAITLISTED", err)
	}
}

// The end-to-end booking story: A books the only seat, B queues, A cancels
// early enough for a refund, B inherits the seat without being debited.
func TestCancel_RefundAndPromotion(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 1)
	seedMember(store, "mA", 2)
	seedMember(store, "mB", 2)
	// 5 hours before class start
	engine := newEngine(store, time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC))

	ctx := context.Background()
	if _, err := engine.Enroll(ctx, "c1", "mA"); err != nil {
		t.Fatalf("enroll A failed: %v", err)
	}
	if store.member("mA").CancellationCredits != 1 {
		t.Fatalf("A credits after booking = %d, want 1", store.member("mA").CancellationCredits)
	}
	if _, err := engine.Enroll(ctx, "c1", "mB"); err != nil {
		t.Fatalf("enroll B failed: %v", err)
	}

	result, err := engine.Cancel(ctx, "c1", "mA")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !result.Refunded {
		t.Error("cancellation 5h out must refund")
	}
	if result.PromotedMember != "mB" {
		t.Errorf("promoted = %q, want mB", result.PromotedMember)
	}

	class := store.class("c1")
	if class.SeatsAvailable != 0 {
		t.Errorf("seats_available = %d, want 0 (B took the freed seat)", class.SeatsAvailable)
	}
	if !contains(class.Enrolled, "mB") || contains(class.Enrolled, "mA") {
		t.Errorf("enrolled = %v, want exactly [mB]", class.Enrolled)
	}
	if len(class.Waitlist) != 0 {
		t.Errorf("waitlist = %v, want empty", class.Waitlist)
	}

	if store.member("mA").CancellationCredits != 2 {
		t.Errorf("A credits = %d, want 2 (refunded)", store.member("mA").CancellationCredits)
	}
	if store.member("mB").CancellationCredits != 2 {
		t.Errorf("B credits = %d, want 2 (promotion must not debit)", store.member("mB").CancellationCredits)
	}
	if !contains(store.member("mB").AssignedClasses, "c1") {
		t.Error("promotion must record the class on B's ledger")
	}
	if contains(store.member("mA").AssignedClasses, "c1") {
		t.Error("cancellation must clear the class from A's ledger")
	}
}

func TestCancel_LateForfeitsRefund(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 1)
	seedMember(store, "m1", 2)
	// 1 hour before class start, inside the 3h window
	engine := newEngine(store, time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC))

	ctx := context.Background()
	if _, err := engine.Enroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	result, err := engine.Cancel(ctx, "c1", "m1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Refunded {
		t.Error("late cancellation must forfeit the refund")
	}
	if store.member("m1").CancellationCredits != 1 {
		t.Errorf("credits = %d, want 1 (spent, not refunded)", store.member("m1").CancellationCredits)
	}

	// The seat still opens up.
	if store.class("c1").SeatsAvailable != 1 {
		t.Errorf("seats_available = %d, want 1", store.class("c1").SeatsAvailable)
	}
}

// Enroll, cancel early, enroll again: the member is back in the same seat
// state and seats_available is net unchanged.
func TestEnrollCancelEnroll_RoundTrip(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 3)
	seedMember(store, "m1", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	ctx := context.Background()
	if _, err := engine.Enroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("first enroll failed: %v", err)
	}
	if _, err := engine.Cancel(ctx, "c1", "m1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	result, err := engine.Enroll(ctx, "c1", "m1")
	if err != nil {
		t.Fatalf("second enroll failed: %v", err)
	}
	if result.Status != StatusConfirmed {
		t.Fatalf("status = %q, want confirmed", result.Status)
	}

	class := store.class("c1")
	if class.SeatsAvailable != 2 {
		t.Errorf("seats_available = %d, want 2 (net unchanged)", class.SeatsAvailable)
	}
	if !contains(class.Enrolled, "m1") {
		t.Error("member not enrolled after round trip")
	}
	// credits: 2 -1 (book) +1 (early cancel) -1 (book) = 1
	if store.member("m1").CancellationCredits != 1 {
		t.Errorf("credits = %d, want 1", store.member("m1").CancellationCredits)
	}
}

func TestCancel_NotEnrolled(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 1)
	seedMember(store, "m1", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	_, err := engine.Cancel(context.Background(), "c1", "m1")
	if !apperrors.IsCode(err, apperrors.CodeNotEnrolled) {
		t.Fatalf("expected NOT_ENROLLED, got %v", err)
	}
}

func TestCheckIn(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 2)
	seedMember(store, "m1", 2)
	seedMember(store, "m2", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 17, 55, 0, 0, time.UTC))

	ctx := context.Background()
	if _, err := engine.Enroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	if err := engine.CheckIn(ctx, "CLASE:c1", "m1"); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	class := store.class("c1")
	if !contains(class.Attendance, "m1") {
		t.Error("attendance missing m1")
	}
	history := store.member("m1").AttendanceHistory
	if len(history) != 1 || history[0].ClassID != "c1" {
		t.Errorf("attendance history = %v, want one c1 entry", history)
	}

	err := engine.CheckIn(ctx, "CLASE:c1", "m1")
	if !apperrors.IsCode(err, apperrors.CodeAlreadyCheckedIn) {
		t.Errorf("second check-in = %v, want ALREADY_CHECKED_IN", err)
	}

	err = engine.CheckIn(ctx, "CLASE:c1", "m2")
	if !apperrors.IsCode(err, apperrors.CodeNotEnrolled) {
		t.Errorf("stranger check-in = %v, want NOT_ENROLLED", err)
	}

	err = engine.CheckIn(ctx, "garbage", "m1")
	if !apperrors.IsCode(err, apperrors.CodeInvalidCode) {
		t.Errorf("garbage code = %v, want INVALID_CODE", err)
	}

	err = engine.CheckIn(ctx, "CLASE:missing", "m1")
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("unknown class = %v, want NOT_FOUND", err)
	}
}

// A stale JSON token checks in fine: the exp claim is not enforced.
func TestCheckIn_ExpiredTokenAccepted(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 1)
	seedMember(store, "m1", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 17, 55, 0, 0, time.UTC))

	ctx := context.Background()
	if _, err := engine.Enroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	expired := fmt.Sprintf(`{"class_id":"c1","exp":%d}`, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	if err := engine.CheckIn(ctx, expired, "m1"); err != nil {
		t.Fatalf("expired token rejected: %v", err)
	}
}

func TestUnenroll_NoRefundNoPromotion(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 1)
	seedMember(store, "m1", 2)
	seedMember(store, "m2", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	ctx := context.Background()
	if _, err := engine.Enroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("enroll m1 failed: %v", err)
	}
	if _, err := engine.Enroll(ctx, "c1", "m2"); err != nil {
		t.Fatalf("enroll m2 failed: %v", err)
	}

	if err := engine.Unenroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("unenroll failed: %v", err)
	}

	class := store.class("c1")
	if class.SeatsAvailable != 1 {
		t.Errorf("seats_available = %d, want 1", class.SeatsAvailable)
	}
	if len(class.Waitlist) != 1 || class.Waitlist[0] != "m2" {
		t.Errorf("waitlist = %v, want [m2] (unenroll must not promote)", class.Waitlist)
	}
	if store.member("m1").CancellationCredits != 1 {
		t.Errorf("m1 credits = %d, want 1 (unenroll must not refund)", store.member("m1").CancellationCredits)
	}
}

// A waitlisted member must not grab a seat freed by another member's
// unenroll: unenroll does not promote, and a direct re-enroll would leave
// the member in both lists at once.
func TestEnroll_QueuedMemberCannotTakeFreedSeat(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 1)
	seedMember(store, "m1", 2)
	seedMember(store, "m2", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	ctx := context.Background()
	if _, err := engine.Enroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("enroll m1 failed: %v", err)
	}
	r2, err := engine.Enroll(ctx, "c1", "m2")
	if err != nil {
		t.Fatalf("enroll m2 failed: %v", err)
	}
	if r2.Status != StatusQueued {
		t.Fatalf("m2 status = %q, want queued", r2.Status)
	}

	// m1 leaves; the seat opens but m2 stays queued.
	if err := engine.Unenroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("unenroll m1 failed: %v", err)
	}

	_, err = engine.Enroll(ctx, "c1", "m2")
	if !apperrors.IsCode(err, apperrors.CodeAlreadyWaitlist) {
		t.Fatalf("queued re-enroll = %v, want ALREADY_WAITLISTED", err)
	}

	class := store.class("c1")
	if contains(class.Enrolled, "m2") {
		t.Error("m2 must not be enrolled while still queued")
	}
	if len(class.Waitlist) != 1 || class.Waitlist[0] != "m2" {
		t.Errorf("waitlist = %v, want [m2]", class.Waitlist)
	}
	if class.SeatsAvailable != 1 {
		t.Errorf("seats_available = %d, want 1", class.SeatsAvailable)
	}
	if store.member("m2").CancellationCredits != 2 {
		t.Errorf("m2 credits = %d, want 2 (rejected enroll must not debit)", store.member("m2").CancellationCredits)
	}
}

func TestUnenroll_RemovesWaitlistedMember(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 1)
	seedMember(store, "m1", 2)
	seedMember(store, "m2", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	ctx := context.Background()
	if _, err := engine.Enroll(ctx, "c1", "m1"); err != nil {
		t.Fatalf("enroll m1 failed: %v", err)
	}
	if _, err := engine.Enroll(ctx, "c1", "m2"); err != nil {
		t.Fatalf("enroll m2 failed: %v", err)
	}

	if err := engine.Unenroll(ctx, "c1", "m2"); err != nil {
		t.Fatalf("unenroll failed: %v", err)
	}
	if len(store.class("c1").Waitlist) != 0 {
		t.Errorf("waitlist = %v, want empty", store.class("c1").Waitlist)
	}
}

func TestUnenroll_NotEnrolled(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "c1", 1)
	seedMember(store, "m1", 2)
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	err := engine.Unenroll(context.Background(), "c1", "m1")
	if !apperrors.IsCode(err, apperrors.CodeNotEnrolled) {
		t.Fatalf("expected NOT_ENROLLED, got %v", err)
	}
}

// N members race for K seats: exactly K confirm, the rest queue, nobody
// fails, the counter never goes negative and the invariant holds.
func TestEnroll_ConcurrentRace(t *testing.T) {
	const members = 40
	const seats = 7

	store := newFakeStore()
	seedClass(store, "c1", seats)
	for i := 0; i < members; i++ {
		seedMember(store, fmt.Sprintf("m%02d", i), 2)
	}
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	results := make(chan EnrollStatus, members)
	errs := make(chan error, members)

	var wg sync.WaitGroup
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			result, err := engine.Enroll(context.Background(), "c1", id)
			if err != nil {
				errs <- err
				return
			}
			results <- result.Status
		}(fmt.Sprintf("m%02d", i))
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("concurrent enroll failed: %v", err)
	}

	var confirmed, queued int
	for status := range results {
		switch status {
		case StatusConfirmed:
			confirmed++
		case StatusQueued:
			queued++
		}
	}
	if confirmed != seats {
		t.Errorf("confirmed = %d, want exactly %d", confirmed, seats)
	}
	if queued != members-seats {
		t.Errorf("queued = %d, want %d", queued, members-seats)
	}

	class := store.class("c1")
	if class.SeatsAvailable != 0 {
		t.Errorf("seats_available = %d, want 0", class.SeatsAvailable)
	}
	if class.SeatsAvailable+len(class.Enrolled) != class.Capacity {
		t.Errorf("invariant broken: seats %d + enrolled %d != capacity %d",
			class.SeatsAvailable, len(class.Enrolled), class.Capacity)
	}
	if len(class.Waitlist) != members-seats {
		t.Errorf("waitlist length = %d, want %d", len(class.Waitlist), members-seats)
	}
}

// Concurrent cancels against a populated waitlist: every freed seat goes to
// a queued member in order, none leaks, no promotion is lost.
func TestCancel_ConcurrentPromotions(t *testing.T) {
	const seats = 5
	const queueLen = 5

	store := newFakeStore()
	seedClass(store, "c1", seats)
	engine := newEngine(store, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	enrolled := make([]string, 0, seats)
	for i := 0; i < seats; i++ {
		id := fmt.Sprintf("e%d", i)
		seedMember(store, id, 2)
		if _, err := engine.Enroll(ctx, "c1", id); err != nil {
			t.Fatalf("seed enroll %s failed: %v", id, err)
		}
		enrolled = append(enrolled, id)
	}
	for i := 0; i < queueLen; i++ {
		id := fmt.Sprintf("q%d", i)
		seedMember(store, id, 2)
		result, err := engine.Enroll(ctx, "c1", id)
		if err != nil || result.Status != StatusQueued {
			t.Fatalf("seed queue %s failed: %v (%+v)", id, err, result)
		}
	}

	var wg sync.WaitGroup
	for _, id := range enrolled {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := engine.Cancel(ctx, "c1", id); err != nil {
				t.Errorf("cancel %s failed: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	class := store.class("c1")
	if class.SeatsAvailable != 0 {
		t.Errorf("seats_available = %d, want 0 (every freed seat promoted)", class.SeatsAvailable)
	}
	if len(class.Enrolled) != queueLen {
		t.Errorf("enrolled = %v, want the %d queued members", class.Enrolled, queueLen)
	}
	if len(class.Waitlist) != 0 {
		t.Errorf("waitlist = %v, want empty", class.Waitlist)
	}
	for i := 0; i < queueLen; i++ {
		id := fmt.Sprintf("q%d", i)
		if !contains(class.Enrolled, id) {
			t.Errorf("queued member %s was not promoted", id)
		}
		if store.member(id).CancellationCredits != 2 {
			t.Errorf("%s credits = %d, want 2 (promotion must not debit)", id, store.member(id).CancellationCredits)
		}
	}
}
