package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/domain"
)

// MongoBookingRepo keeps bookings in a "bookings" collection, one document
// per booking with the id as _id.
type MongoBookingRepo struct {
	bookings    *mongo.Collection
	transitions *mongo.Collection
	log         *logrus.Entry
}

func NewMongoBookingRepo(db *mongo.Database, log *logrus.Logger) *MongoBookingRepo {
	return &MongoBookingRepo{
		bookings:    db.Collection("bookings"),
		transitions: db.Collection("payment_transitions"),
		log:         log.WithField("component", "mongo-ledger"),
	}
}

func (r *MongoBookingRepo) Migrate(ctx context.Context) error {
	_, err := r.bookings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "paymentIntentId", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "checkInDate", Value: 1}, {Key: "checkOutDate", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = r.transitions.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "bookingId", Value: 1}}})
	return err
}

func (r *MongoBookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	if !b.PaymentStatus.Valid() {
		return ErrInvalidStatus
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CheckInDate = b.CheckInDate.UTC()
	b.CheckOutDate = b.CheckOutDate.UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	_, err := r.bookings.InsertOne(ctx, b)
	return err
}

func (r *MongoBookingRepo) ByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoBookingRepo) ByPaymentIntent(ctx context.Context, intentID string) (*domain.Booking, error) {
	if intentID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"paymentIntentId": intentID})
}

func (r *MongoBookingRepo) findOne(ctx context.Context, filter bson.M) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.bookings.FindOne(ctx, filter).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *MongoBookingRepo) find(ctx context.Context, lk Lookup) (*domain.Booking, error) {
	switch {
	case lk.BookingID != "":
		return r.ByID(ctx, lk.BookingID)
	case lk.PaymentIntentID != "":
		return r.ByPaymentIntent(ctx, lk.PaymentIntentID)
	}
	return nil, ErrBadLookup
}

// AdvancePaymentStatus uses FindOneAndUpdate filtered on the status it read,
// so only one writer can move a given status. The transition document is
// written after the update; when that insert fails the status change stands
// and only the audit row is lost.
func (r *MongoBookingRepo) AdvancePaymentStatus(ctx context.Context, lk Lookup, to domain.PaymentStatus, source string) (*domain.Booking, bool, error) {
	if !to.Valid() {
		return nil, false, ErrInvalidStatus
	}
	for attempt := 0; attempt < maxAdvanceAttempts; attempt++ {
		b, err := r.find(ctx, lk)
		if err != nil {
			return nil, false, err
		}
		if !b.PaymentStatus.CanAdvanceTo(to) {
			return b, false, nil
		}

		from := b.PaymentStatus
		now := time.Now().UTC()
		var updated domain.Booking
		err = r.bookings.FindOneAndUpdate(ctx,
			bson.M{"_id": b.ID, "paymentStatus": from},
			bson.M{"$set": bson.M{"paymentStatus": to, "updatedAt": now}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, false, err
		}

		_, err = r.transitions.InsertOne(ctx, domain.PaymentTransition{
			ID:              uuid.NewString(),
			BookingID:       b.ID,
			PaymentIntentID: firstNonEmpty(lk.PaymentIntentID, b.PaymentIntentID),
			From:            from,
			To:              to,
			Source:          source,
			OccurredAt:      now,
		})
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"booking_id": b.ID,
				"from":       from,
				"to":         to,
			}).Error("[ledger] transition not recorded")
		}
		return &updated, true, nil
	}
	b, err := r.find(ctx, lk)
	return b, false, err
}

func (r *MongoBookingRepo) Overlapping(ctx context.Context, checkIn, checkOut, pendingSince time.Time) (bool, error) {
	n, err := r.bookings.CountDocuments(ctx, bson.M{
		"checkInDate":  bson.M{"$lt": checkOut.UTC()},
		"checkOutDate": bson.M{"$gt": checkIn.UTC()},
		"$or": bson.A{
			bson.M{"paymentStatus": bson.M{"$ne": domain.PaymentPending}},
			bson.M{"createdAt": bson.M{"$gte": pendingSince.UTC()}},
		},
	}, options.Count().SetLimit(1))
	return n > 0, err
}

func (r *MongoBookingRepo) List(ctx context.Context, f ListFilter) ([]domain.Booking, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["paymentStatus"] = f.Status
	}
	if !f.From.IsZero() {
		filter["checkOutDate"] = bson.M{"$gt": f.From.UTC()}
	}
	if !f.To.IsZero() {
		filter["checkInDate"] = bson.M{"$lt": f.To.UTC()}
	}
	total, err := r.bookings.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	offset, size := f.limits()
	cur, err := r.bookings.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "checkInDate", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(size)))
	if err != nil {
		return nil, 0, err
	}
	out := []domain.Booking{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *MongoBookingRepo) Transitions(ctx context.Context, bookingID string) ([]domain.PaymentTransition, error) {
	cur, err := r.transitions.Find(ctx, bson.M{"bookingId": bookingID},
		options.Find().SetSort(bson.D{{Key: "occurredAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []domain.PaymentTransition{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var (
	_ BookingStore = (*BookingRepo)(nil)
	_ BookingStore = (*MongoBookingRepo)(nil)
)
