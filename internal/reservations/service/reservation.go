package service

import (
	"context"
	"errors"
	"time"

	classerrors "gymbook/internal/classes/errors"
	classrepo "gymbook/internal/classes/repository"
	membererrors "gymbook/internal/members/errors"
	memberrepo "gymbook/internal/members/repository"
	"gymbook/internal/reservations/checkin"
	"gymbook/internal/reservations/events"
	"gymbook/internal/reservations/policy"
	"gymbook/pkg/config"
	apperrors "gymbook/pkg/errors"
	"gymbook/pkg/model"
)

// EnrollStatus tells the caller whether Enroll landed a seat or queued.
type EnrollStatus string

const (
	StatusConfirmed EnrollStatus = "confirmed"
	StatusQueued    EnrollStatus = "queued"
)

// EnrollResult reports the outcome of an enrollment attempt, including the
// waitlist position when queued (1-based).
type EnrollResult struct {
	Status           EnrollStatus `json:"status"`
	ClassID          string       `json:"class_id"`
	MemberID         string       `json:"member_id"`
	WaitlistPosition int          `json:"waitlist_position,omitempty"`
}

// CancelResult reports whether the credit was refunded and who, if anyone,
// was promoted off the waitlist.
type CancelResult struct {
	ClassID        string `json:"class_id"`
	MemberID       string `json:"member_id"`
	Refunded       bool   `json:"refunded"`
	PromotedMember string `json:"promoted_member,omitempty"`
}

type ReservationService interface {
	Enroll(ctx context.Context, classID, memberID string) (*EnrollResult, error)
	Cancel(ctx context.Context, classID, memberID string) (*CancelResult, error)
	CheckIn(ctx context.Context, rawCode, memberID string) error
	Unenroll(ctx context.Context, classID, memberID string) error
}

// reservationService is the reservation engine. Every mutation of one class
// runs under that class's lock, and the two-document writes (class occurrence
// plus member ledger) run inside one Mongo transaction, so the seat counter,
// the lists and the credit balance move together or not at all.
type reservationService struct {
	classRepo  classrepo.ClassRepository
	memberRepo memberrepo.MemberRepository
	publisher  *events.Publisher
	locker     *classLocker
	cfg        *config.Config
	now        func() time.Time
}

func NewReservationService(
	classRepo classrepo.ClassRepository,
	memberRepo memberrepo.MemberRepository,
	publisher *events.Publisher,
	cfg *config.Config,
) ReservationService {
	return &reservationService{
		classRepo:  classRepo,
		memberRepo: memberRepo,
		publisher:  publisher,
		locker:     newClassLocker(),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Enroll books memberID into classID: a seat if one is free, the waitlist
// tail otherwise. Checks run in a fixed order so callers get stable error
// codes: existence, eligibility, credit, duplicate enrollment, then seats.
func (s *reservationService) Enroll(ctx context.Context, classID, memberID string) (*EnrollResult, error) {
	unlock := s.locker.Lock(classID)
	defer unlock()

	class, member, err := s.loadPair(ctx, classID, memberID)
	if err != nil {
		return nil, err
	}

	if !policy.Eligible(member, class.Type) {
		return nil, apperrors.NotEligible(class.Type)
	}
	if !policy.CanBook(member) {
		return nil, apperrors.NoCredit()
	}
	if class.IsEnrolled(memberID) {
		return nil, apperrors.AlreadyEnrolled(classID)
	}
	// A queued member never self-enrolls past the queue, even into a freed
	// seat: they leave the waitlist only through promotion or Unenroll.
	// Otherwise one id could sit in both lists of the same class.
	if class.IsWaitlisted(memberID) {
		return nil, apperrors.AlreadyWaitlisted(classID)
	}

	if class.SeatsAvailable > 0 {
		err = s.classRepo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			if err := s.classRepo.AddEnrollment(txCtx, classID, memberID); err != nil {
				if errors.Is(err, classerrors.ErrNoSeats) {
					return apperrors.NoSeatsLeft(classID)
				}
				return apperrors.Internal("Failed to enroll member", err)
			}
			if err := s.memberRepo.AdjustCredits(txCtx, memberID, -1); err != nil {
				if errors.Is(err, membererrors.ErrInsufficientCredit) {
					return apperrors.NoCredit()
				}
				return apperrors.Internal("Failed to debit booking credit", err)
			}
			if err := s.memberRepo.AddAssignedClass(txCtx, memberID, classID); err != nil {
				return apperrors.Internal("Failed to record class assignment", err)
			}
			return nil
		})
		if err == nil {
			s.cfg.Log.Info("Enrollment confirmed",
				"class_id", classID,
				"member_id", memberID,
			)
			s.publisher.Publish(ctx, events.Event{
				Type:     events.TypeReservationConfirmed,
				ClassID:  classID,
				MemberID: memberID,
			})
			return &EnrollResult{
				Status:   StatusConfirmed,
				ClassID:  classID,
				MemberID: memberID,
			}, nil
		}
		// The seat CAS losing under the class lock means another instance
		// claimed the last seat; fall through to the waitlist like any
		// other full class.
		if !apperrors.IsCode(err, apperrors.CodeNoSeatsLeft) {
			s.cfg.Log.Error("Failed to confirm enrollment",
				"class_id", classID,
				"member_id", memberID,
				"error", err,
			)
			return nil, err
		}
	}

	if err := s.classRepo.AppendWaitlist(ctx, classID, memberID); err != nil {
		if errors.Is(err, classerrors.ErrAlreadyQueued) {
			return nil, apperrors.AlreadyWaitlisted(classID)
		}
		s.cfg.Log.Error("Failed to queue member",
			"class_id", classID,
			"member_id", memberID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to join waitlist", err)
	}

	s.cfg.Log.Info("Member queued on waitlist",
		"class_id", classID,
		"member_id", memberID,
		"position", len(class.Waitlist)+1,
	)
	s.publisher.Publish(ctx, events.Event{
		Type:     events.TypeReservationQueued,
		ClassID:  classID,
		MemberID: memberID,
	})
	return &EnrollResult{
		Status:           StatusQueued,
		ClassID:          classID,
		MemberID:         memberID,
		WaitlistPosition: len(class.Waitlist) + 1,
	}, nil
}

// Cancel releases the member's seat, refunds the credit when the class is
// still far enough out, and promotes the waitlist head into the freed seat.
// Promotion is part of the same guarded section: the seat never leaks to a
// concurrent enroller while a queue is waiting. The promoted member is not
// debited a credit and not re-checked for eligibility; their queue position
// was their claim.
func (s *reservationService) Cancel(ctx context.Context, classID, memberID string) (*CancelResult, error) {
	unlock := s.locker.Lock(classID)
	defer unlock()

	class, _, err := s.loadPair(ctx, classID, memberID)
	if err != nil {
		return nil, err
	}

	if !class.IsEnrolled(memberID) {
		return nil, apperrors.NotEnrolled(classID)
	}

	refund := policy.RefundOnCancel(class.Date, s.now(), s.cfg.LateCancelWindow)

	err = s.classRepo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.classRepo.RemoveEnrollment(txCtx, classID, memberID); err != nil {
			if errors.Is(err, classerrors.ErrNotEnrolled) {
				return apperrors.NotEnrolled(classID)
			}
			return apperrors.Internal("Failed to release seat", err)
		}
		if err := s.memberRepo.RemoveAssignedClass(txCtx, memberID, classID); err != nil {
			return apperrors.Internal("Failed to clear class assignment", err)
		}
		if refund {
			if err := s.memberRepo.AdjustCredits(txCtx, memberID, 1); err != nil {
				return apperrors.Internal("Failed to refund booking credit", err)
			}
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to cancel reservation",
			"class_id", classID,
			"member_id", memberID,
			"error", err,
		)
		return nil, err
	}

	result := &CancelResult{
		ClassID:  classID,
		MemberID: memberID,
		Refunded: refund,
	}

	s.cfg.Log.Info("Reservation cancelled",
		"class_id", classID,
		"member_id", memberID,
		"refunded", refund,
	)
	s.publisher.Publish(ctx, events.Event{
		Type:     events.TypeReservationCancelled,
		ClassID:  classID,
		MemberID: memberID,
		Refunded: refund,
	})

	if promoted := s.promoteHead(ctx, classID); promoted != "" {
		result.PromotedMember = promoted
	}

	return result, nil
}

// promoteHead moves the current waitlist head into a free seat, retrying
// from a fresh read if the list shifts underneath. Runs under the class
// lock held by the caller. Returns the promoted member id, or empty when
// the waitlist is empty or no seat is free.
func (s *reservationService) promoteHead(ctx context.Context, classID string) string {
	for {
		class, err := s.classRepo.FindByID(ctx, classID)
		if err != nil {
			s.cfg.Log.Error("Failed to re-read class for promotion",
				"class_id", classID,
				"error", err,
			)
			return ""
		}
		if len(class.Waitlist) == 0 || class.SeatsAvailable <= 0 {
			return ""
		}

		head := class.Waitlist[0]
		err = s.classRepo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			if err := s.classRepo.PromoteWaitlistHead(txCtx, classID, head); err != nil {
				return err
			}
			return s.memberRepo.AddAssignedClass(txCtx, head, classID)
		})
		if err != nil {
			if errors.Is(err, classerrors.ErrWaitlistChanged) {
				continue
			}
			s.cfg.Log.Error("Failed to promote waitlist head",
				"class_id", classID,
				"member_id", head,
				"error", err,
			)
			return ""
		}

		s.cfg.Log.Info("Waitlist member promoted",
			"class_id", classID,
			"member_id", head,
		)
		s.publisher.Publish(ctx, events.Event{
			Type:     events.TypeWaitlistPromoted,
			ClassID:  classID,
			MemberID: head,
		})
		return head
	}
}

// CheckIn records attendance from a scanned code. The code's exp claim, when
// present, is decoded but deliberately not compared to the clock.
func (s *reservationService) CheckIn(ctx context.Context, rawCode, memberID string) error {
	code, err := checkin.Parse(rawCode)
	if err != nil {
		return err
	}
	classID := code.ClassID

	unlock := s.locker.Lock(classID)
	defer unlock()

	class, _, err := s.loadPair(ctx, classID, memberID)
	if err != nil {
		return err
	}

	if class.HasCheckedIn(memberID) {
		return apperrors.AlreadyCheckedIn(classID)
	}
	if !class.IsEnrolled(memberID) {
		return apperrors.NotEnrolled(classID)
	}

	timestamp := s.now().UTC()
	err = s.classRepo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.classRepo.AddAttendance(txCtx, classID, memberID); err != nil {
			if errors.Is(err, classerrors.ErrNotEnrolled) {
				return apperrors.NotEnrolled(classID)
			}
			return apperrors.Internal("Failed to record attendance", err)
		}
		return s.memberRepo.AppendAttendance(txCtx, memberID, model.AttendanceEntry{
			ClassID:   classID,
			Timestamp: timestamp,
		})
	})
	if err != nil {
		s.cfg.Log.Error("Failed to check member in",
			"class_id", classID,
			"member_id", memberID,
			"error", err,
		)
		return err
	}

	s.cfg.Log.Info("Member checked in",
		"class_id", classID,
		"member_id", memberID,
	)
	s.publisher.Publish(ctx, events.Event{
		Type:     events.TypeMemberCheckedIn,
		ClassID:  classID,
		MemberID: memberID,
	})
	return nil
}

// Unenroll is the self-service "leave this class" action: the seat opens
// up, but no credit moves and nobody is promoted. Waitlisted members are
// removed from the queue the same way.
func (s *reservationService) Unenroll(ctx context.Context, classID, memberID string) error {
	unlock := s.locker.Lock(classID)
	defer unlock()

	class, _, err := s.loadPair(ctx, classID, memberID)
	if err != nil {
		return err
	}

	if class.IsWaitlisted(memberID) {
		if err := s.classRepo.RemoveFromWaitlist(ctx, classID, memberID); err != nil {
			s.cfg.Log.Error("Failed to remove member from waitlist",
				"class_id", classID,
				"member_id", memberID,
				"error", err,
			)
			return apperrors.Internal("Failed to remove member from waitlist", err)
		}
		s.cfg.Log.Info("Member removed from waitlist",
			"class_id", classID,
			"member_id", memberID,
		)
		return nil
	}

	if !class.IsEnrolled(memberID) {
		return apperrors.NotEnrolled(classID)
	}

	err = s.classRepo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.classRepo.RemoveEnrollment(txCtx, classID, memberID); err != nil {
			if errors.Is(err, classerrors.ErrNotEnrolled) {
				return apperrors.NotEnrolled(classID)
			}
			return apperrors.Internal("Failed to remove enrollment", err)
		}
		return s.memberRepo.RemoveAssignedClass(txCtx, memberID, classID)
	})
	if err != nil {
		s.cfg.Log.Error("Failed to unenroll member",
			"class_id", classID,
			"member_id", memberID,
			"error", err,
		)
		return err
	}

	s.cfg.Log.Info("Member unenrolled",
		"class_id", classID,
		"member_id", memberID,
	)
	s.publisher.Publish(ctx, events.Event{
		Type:     events.TypeMemberUnenrolled,
		ClassID:  classID,
		MemberID: memberID,
	})
	return nil
}

// loadPair resolves the class occurrence and the member ledger, mapping
// store sentinels onto the caller-facing taxonomy.
func (s *reservationService) loadPair(ctx context.Context, classID, memberID string) (*model.Class, *model.Member, error) {
	class, err := s.classRepo.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, classerrors.ErrNotFound) {
			return nil, nil, apperrors.NotFoundWithID("Class", classID)
		}
		if errors.Is(err, classerrors.ErrInvalidID) {
			return nil, nil, apperrors.InvalidInput("Invalid class ID format")
		}
		return nil, nil, apperrors.Internal("Failed to load class", err)
	}

	member, err := s.memberRepo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, membererrors.ErrNotFound) {
			return nil, nil, apperrors.NotFoundWithID("Member", memberID)
		}
		if errors.Is(err, membererrors.ErrInvalidID) {
			return nil, nil, apperrors.InvalidInput("Invalid member ID format")
		}
		return nil, nil, apperrors.Internal("Failed to load member ledger", err)
	}

	return class, member, nil
}
