package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/pkg/logger"
	"github.com/prohmpiriya/event-registration/pkg/retry"
)

const (
	eventsCollection        = "events"
	registrationsCollection = "registrations"
	// registeredCountField mirrors the active registration count on the event
	// document so admission is one conditional update.
	registeredCountField = "registered_count"
)

// releaseRetry bounds how long a seat release outside a transaction is
// retried before the counter is left inflated
var releaseRetry = &retry.Config{
	MaxRetries:      3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
	Multiplier:      2.0,
	JitterFactor:    0.1,
}

// MongoStore keeps events and registrations in MongoDB. On a replica set or
// sharded cluster the seat counter and the registration are written in one
// transaction; a standalone server gets sequential writes with a retried
// seat release.
type MongoStore struct {
	db            *mongo.Database
	events        *mongo.Collection
	registrations *mongo.Collection

	topologyMu   sync.Mutex
	topologySeen bool
	transactions bool
}

// NewMongoStore binds the store to db
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:            db,
		events:        db.Collection(eventsCollection),
		registrations: db.Collection(registrationsCollection),
	}
}

// SupportsTransactions reports whether the deployment accepts multi-document
// transactions. The answer is cached after the first successful check.
func (s *MongoStore) SupportsTransactions(ctx context.Context) (bool, error) {
	s.topologyMu.Lock()
	defer s.topologyMu.Unlock()
	if s.topologySeen {
		return s.transactions, nil
	}

	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := s.db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, fmt.Errorf("failed to read mongodb topology: %w", err)
	}
	s.transactions = hello.SetName != "" || hello.Msg == "isdbgrid"
	s.topologySeen = true
	return s.transactions, nil
}

// inTransaction runs fn inside a transaction on a fresh session
func (s *MongoStore) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start mongodb session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// EnsureIndexes creates the indexes admission relies on
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.registrations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "event_id", Value: 1}},
			Options: options.Index().
				SetName("uq_user_event_active").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": domain.RegistrationStatusRegistered}),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_user_created"),
		},
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_event_status"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create registration indexes: %w", err)
	}

	_, err = s.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "date", Value: 1}},
		Options: options.Index().SetName("idx_date"),
	})
	if err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}
	return nil
}

// Events returns the store's EventRepository
func (s *MongoStore) Events() EventRepository {
	return &mongoEventRepository{s}
}

// Registrations returns the store's RegistrationRepository
func (s *MongoStore) Registrations() RegistrationRepository {
	r := &mongoRegistrationRepository{s: s}
	r.release = r.releaseSeat
	return r
}

type mongoEventRepository struct {
	s *MongoStore
}

func (r *mongoEventRepository) Create(ctx context.Context, event *domain.Event) error {
	doc := bson.M{
		"_id":                event.ID,
		"name":               event.Name,
		"description":        event.Description,
		"date":               event.Date,
		"location":           event.Location,
		"category":           event.Category,
		"capacity":           event.Capacity,
		"organizer":          event.Organizer,
		"created_at":         event.CreatedAt,
		"updated_at":         event.UpdatedAt,
		registeredCountField: 0,
	}
	if _, err := r.s.events.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrEventAlreadyExists
		}
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (r *mongoEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	var event domain.Event
	err := r.s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

func (r *mongoEventRepository) List(ctx context.Context, filter *EventFilter) ([]*domain.Event, error) {
	if filter == nil {
		filter = &EventFilter{}
	}

	query := bson.M{}
	if filter.Search != "" {
		query["name"] = containsRegex(filter.Search)
	}
	if filter.Category != "" {
		query["category"] = containsRegex(filter.Category)
	}
	if filter.Location != "" {
		query["location"] = containsRegex(filter.Location)
	}
	if filter.From != nil {
		query["date"] = bson.M{"$gte": *filter.From}
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.s.events.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	events := make([]*domain.Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

func (r *mongoEventRepository) DeleteAll(ctx context.Context) (int64, error) {
	if _, err := r.s.registrations.DeleteMany(ctx, bson.M{}); err != nil {
		return 0, fmt.Errorf("failed to delete registrations: %w", err)
	}
	res, err := r.s.events.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return res.DeletedCount, nil
}

type mongoRegistrationRepository struct {
	s *MongoStore
	// release gives a seat back to the event
	release func(ctx context.Context, eventID string) error
}

// Admit reserves a seat with a conditional increment on the event document,
// then inserts the registration. Inside a transaction a rejected insert
// rolls the increment back; otherwise the seat is released again.
func (r *mongoRegistrationRepository) Admit(ctx context.Context, reg *domain.Registration) error {
	tx, err := r.s.SupportsTransactions(ctx)
	if err != nil {
		return err
	}

	if tx {
		err = r.s.inTransaction(ctx, func(ctx context.Context) error {
			if err := r.reserveSeat(ctx, reg.EventID); err != nil {
				return err
			}
			return r.insert(ctx, reg)
		})
	} else {
		err = r.reserveSeat(ctx, reg.EventID)
		if err == nil {
			if err = r.insert(ctx, reg); err != nil {
				r.releaseAfterWrite(ctx, reg.EventID)
			}
		}
	}

	if errors.Is(err, errNoSeat) {
		return r.noSeatReason(ctx, reg.EventID)
	}
	return err
}

// errNoSeat reports that the conditional increment matched nothing
var errNoSeat = errors.New("no seat reserved")

func (r *mongoRegistrationRepository) reserveSeat(ctx context.Context, eventID string) error {
	seatFree := bson.M{"$expr": bson.M{"$lt": bson.A{
		bson.M{"$ifNull": bson.A{"$" + registeredCountField, 0}},
		"$capacity",
	}}}
	filter := bson.M{"_id": eventID, "$and": bson.A{seatFree}}

	err := r.s.events.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{registeredCountField: 1}}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errNoSeat
	}
	if err != nil {
		return fmt.Errorf("failed to reserve seat: %w", err)
	}
	return nil
}

func (r *mongoRegistrationRepository) insert(ctx context.Context, reg *domain.Registration) error {
	if _, err := r.s.registrations.InsertOne(ctx, reg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateRegistration
		}
		return fmt.Errorf("failed to insert registration: %w", err)
	}
	return nil
}

// noSeatReason tells a missing event apart from a full one
func (r *mongoRegistrationRepository) noSeatReason(ctx context.Context, eventID string) error {
	n, err := r.s.events.CountDocuments(ctx, bson.M{"_id": eventID})
	if err != nil {
		return fmt.Errorf("failed to look up event: %w", err)
	}
	if n == 0 {
		return domain.ErrEventNotFound
	}
	return domain.ErrCapacityExceeded
}

// Remove deletes the registration and releases its seat. Inside a
// transaction both writes commit or neither does. Otherwise the deletion
// stands once committed and a seat release that keeps failing is logged.
func (r *mongoRegistrationRepository) Remove(ctx context.Context, userID, eventID string) (*domain.Registration, error) {
	tx, err := r.s.SupportsTransactions(ctx)
	if err != nil {
		return nil, err
	}

	var reg *domain.Registration
	if tx {
		err = r.s.inTransaction(ctx, func(ctx context.Context) error {
			var txErr error
			reg, txErr = r.delete(ctx, userID, eventID)
			if txErr != nil {
				return txErr
			}
			if reg.IsActive() {
				return r.release(ctx, eventID)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return reg, nil
	}

	reg, err = r.delete(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if reg.IsActive() {
		r.releaseAfterWrite(ctx, eventID)
	}
	return reg, nil
}

func (r *mongoRegistrationRepository) delete(ctx context.Context, userID, eventID string) (*domain.Registration, error) {
	var reg domain.Registration
	err := r.s.registrations.FindOneAndDelete(ctx, bson.M{"user_id": userID, "event_id": eventID}).Decode(&reg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to delete registration: %w", err)
	}
	return &reg, nil
}

// releaseAfterWrite retries a seat release that follows an already committed
// write. The caller's outcome does not depend on it.
func (r *mongoRegistrationRepository) releaseAfterWrite(ctx context.Context, eventID string) {
	err := retry.Do(context.WithoutCancel(ctx), releaseRetry, func(ctx context.Context) error {
		return r.release(ctx, eventID)
	})
	if err != nil {
		logger.Get().Error(fmt.Sprintf("seat count for event %s left one too high", eventID), zap.Error(err))
	}
}

func (r *mongoRegistrationRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	n, err := r.s.registrations.CountDocuments(ctx, bson.M{
		"event_id": eventID,
		"status":   domain.RegistrationStatusRegistered,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return int(n), nil
}

func (r *mongoRegistrationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Registration, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.s.registrations.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	regs := make([]*domain.Registration, 0)
	if err := cursor.All(ctx, &regs); err != nil {
		return nil, fmt.Errorf("failed to decode registrations: %w", err)
	}
	return regs, nil
}

func (r *mongoRegistrationRepository) releaseSeat(ctx context.Context, eventID string) error {
	_, err := r.s.events.UpdateOne(ctx,
		bson.M{"_id": eventID, registeredCountField: bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{registeredCountField: -1}},
	)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	return nil
}

func containsRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}
