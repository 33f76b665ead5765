package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	membererrors "gymbook/internal/members/errors"
	"gymbook/pkg/config"
	mongotx "gymbook/pkg/db/mongo"
	"gymbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	CollectionName = "Members"
)

type mongoMemberRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

// MemberRepository is the booking-ledger store. Credit adjustments are
// conditional so a balance can never be driven below zero, whatever order
// concurrent cancellations land in.
type MemberRepository interface {
	Create(ctx context.Context, member *model.Member) error
	FindByID(ctx context.Context, id string) (*model.Member, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Member, error)

	AdjustCredits(ctx context.Context, id string, delta int) error
	AddAssignedClass(ctx context.Context, id, classID string) error
	RemoveAssignedClass(ctx context.Context, id, classID string) error
	AppendAttendance(ctx context.Context, id string, entry model.AttendanceEntry) error
	RemoveAssignedClassFromAll(ctx context.Context, classID string) (int64, error)

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoMemberRepository(cfg *config.Config) MemberRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoMemberRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoMemberRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoMemberRepository) Create(ctx context.Context, member *model.Member) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	member.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if member.EligibleClassTypes == nil {
		member.EligibleClassTypes = []string{}
	}
	if member.AssignedClasses == nil {
		member.AssignedClasses = []string{}
	}
	if member.AttendanceHistory == nil {
		member.AttendanceHistory = []model.AttendanceEntry{}
	}

	result, err := r.collection.InsertOne(ctx, member)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		member.ID = oid.Hex()
	}
	return nil
}

func (r *mongoMemberRepository) FindByID(ctx context.Context, id string) (*model.Member, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", membererrors.ErrInvalidID, id)
	}

	var member model.Member
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&member)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, membererrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find member: %w", err)
	}

	return &member, nil
}

// FindByIDs fetches the given members in one query. Unknown ids are skipped,
// not errored; the roster projection tolerates stale references.
func (r *mongoMemberRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Member, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if len(ids) == 0 {
		return []*model.Member{}, nil
	}

	objectIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		objectID, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		objectIDs = append(objectIDs, objectID)
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": objectIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to find members: %w", err)
	}
	defer cursor.Close(ctx)

	var members []*model.Member
	if err = cursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("failed to decode members: %w", err)
	}

	return members, nil
}

// AdjustCredits applies delta to the credit balance. For a debit the filter
// requires the balance to cover it, so the counter can never go negative.
func (r *mongoMemberRepository) AdjustCredits(ctx context.Context, id string, delta int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", membererrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID}
	if delta < 0 {
		filter["cancellation_credits"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"cancellation_credits": delta},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to adjust credits: %w", err)
	}
	if result.MatchedCount == 0 {
		if delta < 0 {
			return membererrors.ErrInsufficientCredit
		}
		return membererrors.ErrNotFound
	}

	return nil
}

func (r *mongoMemberRepository) AddAssignedClass(ctx context.Context, id, classID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", membererrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$addToSet": bson.M{"assigned_classes": classID}},
	)
	if err != nil {
		return fmt.Errorf("failed to add assigned class: %w", err)
	}
	if result.MatchedCount == 0 {
		return membererrors.ErrNotFound
	}

	return nil
}

func (r *mongoMemberRepository) RemoveAssignedClass(ctx context.Context, id, classID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", membererrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$pull": bson.M{"assigned_classes": classID}},
	)
	if err != nil {
		return fmt.Errorf("failed to remove assigned class: %w", err)
	}
	if result.MatchedCount == 0 {
		return membererrors.ErrNotFound
	}

	return nil
}

func (r *mongoMemberRepository) AppendAttendance(ctx context.Context, id string, entry model.AttendanceEntry) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", membererrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$push": bson.M{"attendance_history": entry}},
	)
	if err != nil {
		return fmt.Errorf("failed to append attendance: %w", err)
	}
	if result.MatchedCount == 0 {
		return membererrors.ErrNotFound
	}

	return nil
}

// RemoveAssignedClassFromAll strips classID from every member's assigned
// list. Used when a class is deleted; returns the number of members touched.
func (r *mongoMemberRepository) RemoveAssignedClassFromAll(ctx context.Context, classID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateMany(ctx,
		bson.M{"assigned_classes": classID},
		bson.M{"$pull": bson.M{"assigned_classes": classID}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove class from members: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoMemberRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
