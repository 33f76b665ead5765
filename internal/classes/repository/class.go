package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	classerrors "gymbook/internal/classes/errors"
	"gymbook/pkg/config"
	mongotx "gymbook/pkg/db/mongo"
	"gymbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Classes"
)

type mongoClassRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

// ClassRepository is the Class Record Store. Seat-touching updates are
// conditional: the filter encodes the invariant being relied on, so a lost
// race surfaces as a typed error instead of a corrupted counter.
type ClassRepository interface {
	Create(ctx context.Context, class *model.Class) error
	FindByID(ctx context.Context, id string) (*model.Class, error)
	FindInRange(ctx context.Context, rng DateRange, limit int, offset int64) ([]*model.Class, error)
	CountInRange(ctx context.Context, rng DateRange) (int64, error)
	Update(ctx context.Context, id string, class *model.Class) error
	Delete(ctx context.Context, id string) error

	AddEnrollment(ctx context.Context, classID, memberID string) error
	RemoveEnrollment(ctx context.Context, classID, memberID string) error
	AppendWaitlist(ctx context.Context, classID, memberID string) error
	RemoveFromWaitlist(ctx context.Context, classID, memberID string) error
	PromoteWaitlistHead(ctx context.Context, classID, memberID string) error
	AddAttendance(ctx context.Context, classID, memberID string) error

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoClassRepository(cfg *config.Config) ClassRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoClassRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless already inside a
// transaction; a SessionContext cannot be re-wrapped without breaking
// transaction semantics.
func (r *mongoClassRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoClassRepository) Create(ctx context.Context, class *model.Class) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	class.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if class.Enrolled == nil {
		class.Enrolled = []string{}
	}
	if class.Waitlist == nil {
		class.Waitlist = []string{}
	}
	if class.Attendance == nil {
		class.Attendance = []string{}
	}

	result, err := r.collection.InsertOne(ctx, class)
	if err != nil {
		return fmt.Errorf("failed to create class: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		class.ID = oid.Hex()
	}
	return nil
}

func (r *mongoClassRepository) FindByID(ctx context.Context, id string) (*model.Class, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", classerrors.ErrInvalidID, id)
	}

	var class model.Class
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&class)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, classerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find class: %w", err)
	}

	return &class, nil
}

// DateRange bounds a class listing by start date. After is exclusive and
// carries "from this instant on" cutoffs; From is inclusive so a day query
// keeps a class scheduled exactly at midnight. To is always exclusive.
type DateRange struct {
	After *time.Time
	From  *time.Time
	To    *time.Time
}

func (r *mongoClassRepository) FindInRange(ctx context.Context, rng DateRange, limit int, offset int64) ([]*model.Class, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, buildRangeFilter(rng), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find classes: %w", err)
	}
	defer cursor.Close(ctx)

	var classes []*model.Class
	if err = cursor.All(ctx, &classes); err != nil {
		return nil, fmt.Errorf("failed to decode classes: %w", err)
	}

	return classes, nil
}

func (r *mongoClassRepository) CountInRange(ctx context.Context, rng DateRange) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildRangeFilter(rng))
	if err != nil {
		return 0, fmt.Errorf("failed to count classes: %w", err)
	}
	return count, nil
}

func buildRangeFilter(rng DateRange) bson.M {
	filter := bson.M{}
	dateFilter := bson.M{}
	if rng.After != nil {
		dateFilter["$gt"] = *rng.After
	}
	if rng.From != nil {
		dateFilter["$gte"] = *rng.From
	}
	if rng.To != nil {
		dateFilter["$lt"] = *rng.To
	}
	if len(dateFilter) > 0 {
		filter["date"] = dateFilter
	}
	return filter
}

func (r *mongoClassRepository) Update(ctx context.Context, id string, class *model.Class) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", classerrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"type":            class.Type,
			"day_of_week":     class.DayOfWeek,
			"start_time":      class.StartTime,
			"end_time":        class.EndTime,
			"date":            class.Date,
			"capacity":        class.Capacity,
			"seats_available": class.SeatsAvailable,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to update class: %w", err)
	}
	if result.MatchedCount == 0 {
		return classerrors.ErrNotFound
	}

	return nil
}

func (r *mongoClassRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", classerrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete class: %w", err)
	}
	if result.DeletedCount == 0 {
		return classerrors.ErrNotFound
	}

	return nil
}

// AddEnrollment claims one seat for the member. The filter is the oversell
// guard: it only matches while a seat is free and the member holds none.
// Queued members are excluded too, so an id can never land in enrolled and
// waitlist at once; they take a seat through PromoteWaitlistHead only.
func (r *mongoClassRepository) AddEnrollment(ctx context.Context, classID, memberID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(classID)
	if err != nil {
		return fmt.Errorf("%w: %s", classerrors.ErrInvalidID, classID)
	}

	filter := bson.M{
		"_id":             objectID,
		"seats_available": bson.M{"$gt": 0},
		"enrolled":        bson.M{"$ne": memberID},
		"waitlist":        bson.M{"$ne": memberID},
	}
	update := bson.M{
		"$push": bson.M{"enrolled": memberID},
		"$inc":  bson.M{"seats_available": -1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to enroll member: %w", err)
	}
	if result.MatchedCount == 0 {
		return classerrors.ErrNoSeats
	}

	return nil
}

func (r *mongoClassRepository) RemoveEnrollment(ctx context.Context, classID, memberID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(classID)
	if err != nil {
		return fmt.Errorf("%w: %s", classerrors.ErrInvalidID, classID)
	}

	filter := bson.M{
		"_id":      objectID,
		"enrolled": memberID,
	}
	update := bson.M{
		"$pull": bson.M{"enrolled": memberID, "attendance": memberID},
		"$inc":  bson.M{"seats_available": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove enrollment: %w", err)
	}
	if result.MatchedCount == 0 {
		return classerrors.ErrNotEnrolled
	}

	return nil
}

func (r *mongoClassRepository) AppendWaitlist(ctx context.Context, classID, memberID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(classID)
	if err != nil {
		return fmt.Errorf("%w: %s", classerrors.ErrInvalidID, classID)
	}

	// A member can never sit in both lists of the same class.
	filter := bson.M{
		"_id":      objectID,
		"enrolled": bson.M{"$ne": memberID},
		"waitlist": bson.M{"$ne": memberID},
	}
	update := bson.M{
		"$push": bson.M{"waitlist": memberID},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to append to waitlist: %w", err)
	}
	if result.MatchedCount == 0 {
		return classerrors.ErrAlreadyQueued
	}

	return nil
}

func (r *mongoClassRepository) RemoveFromWaitlist(ctx context.Context, classID, memberID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(classID)
	if err != nil {
		return fmt.Errorf("%w: %s", classerrors.ErrInvalidID, classID)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$pull": bson.M{"waitlist": memberID}},
	)
	if err != nil {
		return fmt.Errorf("failed to remove from waitlist: %w", err)
	}
	if result.MatchedCount == 0 {
		return classerrors.ErrNotFound
	}

	return nil
}

// PromoteWaitlistHead moves memberID from the front of the waitlist into a
// seat. The caller names the expected head; if the list shifted underneath,
// the filter misses and the promotion is retried from a fresh read.
func (r *mongoClassRepository) PromoteWaitlistHead(ctx context.Context, classID, memberID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(classID)
	if err != nil {
		return fmt.Errorf("%w: %s", classerrors.ErrInvalidID, classID)
	}

	filter := bson.M{
		"_id":             objectID,
		"waitlist.0":      memberID,
		"seats_available": bson.M{"$gt": 0},
	}
	update := bson.M{
		"$pop":  bson.M{"waitlist": -1},
		"$push": bson.M{"enrolled": memberID},
		"$inc":  bson.M{"seats_available": -1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to promote waitlist head: %w", err)
	}
	if result.MatchedCount == 0 {
		return classerrors.ErrWaitlistChanged
	}

	return nil
}

func (r *mongoClassRepository) AddAttendance(ctx context.Context, classID, memberID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(classID)
	if err != nil {
		return fmt.Errorf("%w: %s", classerrors.ErrInvalidID, classID)
	}

	// attendance stays a subset of enrolled
	filter := bson.M{
		"_id":        objectID,
		"enrolled":   memberID,
		"attendance": bson.M{"$ne": memberID},
	}
	update := bson.M{
		"$push": bson.M{"attendance": memberID},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to record attendance: %w", err)
	}
	if result.MatchedCount == 0 {
		return classerrors.ErrNotEnrolled
	}

	return nil
}

func (r *mongoClassRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
