package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/calendar"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/domain"
)

func newMongoRepo(mt *mtest.T) *MongoBookingRepo {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewMongoBookingRepo(mt.DB, l)
}

func bookingDoc(id string, status domain.PaymentStatus) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "guestName", Value: "Ada Lovelace"},
		{Key: "email", Value: "ada@example.com"},
		{Key: "checkInDate", Value: calendar.Of(2025, 3, 10).Time()},
		{Key: "checkOutDate", Value: calendar.Of(2025, 3, 14).Time()},
		{Key: "adults", Value: 2},
		{Key: "total", Value: 450.0},
		{Key: "paymentStatus", Value: string(status)},
		{Key: "paymentIntentId", Value: "pi_mongo"},
	}
}

func bookingsNS(mt *mtest.T) string { return mt.DB.Name() + ".bookings" }

func found(mt *mtest.T, docs ...bson.D) bson.D {
	return mtest.CreateCursorResponse(0, bookingsNS(mt), mtest.FirstBatch, docs...)
}

func modified(doc bson.D) bson.D {
	var v any
	if doc != nil {
		v = doc
	}
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: v})
}

func inserted() bson.D { return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}) }

// sent returns the commands named name, in the order the repo issued them.
func sent(mt *mtest.T, name string) []bson.Raw {
	var out []bson.Raw
	for _, evt := range mt.GetAllStartedEvents() {
		if evt.CommandName == name {
			out = append(out, evt.Command)
		}
	}
	return out
}

func TestMongoAdvancePaymentStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("advances from the status it read", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(
			found(mt, bookingDoc("b1", domain.PaymentPending)),
			modified(bookingDoc("b1", domain.PaymentSucceeded)),
			inserted(),
		)

		b, advanced, err := repo.AdvancePaymentStatus(ctx, ByBooking("b1"), domain.PaymentSucceeded, domain.SourceWebhook)
		require.NoError(mt, err)
		assert.True(mt, advanced)
		assert.Equal(mt, domain.PaymentSucceeded, b.PaymentStatus)

		updates := sent(mt, "findAndModify")
		require.Len(mt, updates, 1)
		assert.Equal(mt, "b1", updates[0].Lookup("query", "_id").StringValue())
		assert.Equal(mt, "pending", updates[0].Lookup("query", "paymentStatus").StringValue())
		assert.Equal(mt, "succeeded", updates[0].Lookup("update", "$set", "paymentStatus").StringValue())

		inserts := sent(mt, "insert")
		require.Len(mt, inserts, 1)
		row := inserts[0].Lookup("documents", "0")
		assert.Equal(mt, "pending", row.Document().Lookup("from").StringValue())
		assert.Equal(mt, "succeeded", row.Document().Lookup("to").StringValue())
		assert.Equal(mt, "webhook", row.Document().Lookup("source").StringValue())
		assert.Equal(mt, "pi_mongo", row.Document().Lookup("paymentIntentId").StringValue())
	})

	mt.Run("lost race retries from the new status", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(
			found(mt, bookingDoc("b2", domain.PaymentPending)),
			modified(nil),
			found(mt, bookingDoc("b2", domain.PaymentCompleted)),
			modified(bookingDoc("b2", domain.PaymentSucceeded)),
			inserted(),
		)

		b, advanced, err := repo.AdvancePaymentStatus(ctx, ByBooking("b2"), domain.PaymentSucceeded, domain.SourceConfirm)
		require.NoError(mt, err)
		assert.True(mt, advanced)
		assert.Equal(mt, domain.PaymentSucceeded, b.PaymentStatus)

		updates := sent(mt, "findAndModify")
		require.Len(mt, updates, 2)
		assert.Equal(mt, "pending", updates[0].Lookup("query", "paymentStatus").StringValue())
		assert.Equal(mt, "completed", updates[1].Lookup("query", "paymentStatus").StringValue())
		assert.Len(mt, sent(mt, "insert"), 1)
	})

	mt.Run("lost race to the same target writes nothing", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(
			found(mt, bookingDoc("b3", domain.PaymentPending)),
			modified(nil),
			found(mt, bookingDoc("b3", domain.PaymentSucceeded)),
		)

		b, advanced, err := repo.AdvancePaymentStatus(ctx, ByIntent("pi_mongo"), domain.PaymentSucceeded, domain.SourceWebhook)
		require.NoError(mt, err)
		assert.False(mt, advanced)
		assert.Equal(mt, domain.PaymentSucceeded, b.PaymentStatus)
		assert.Empty(mt, sent(mt, "insert"))
	})

	mt.Run("re-applying the current status is a no-op", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(found(mt, bookingDoc("b4", domain.PaymentSucceeded)))

		b, advanced, err := repo.AdvancePaymentStatus(ctx, ByBooking("b4"), domain.PaymentSucceeded, domain.SourceConfirm)
		require.NoError(mt, err)
		assert.False(mt, advanced)
		assert.Equal(mt, domain.PaymentSucceeded, b.PaymentStatus)
		assert.Empty(mt, sent(mt, "findAndModify"))
	})

	mt.Run("unknown booking", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(found(mt))

		b, advanced, err := repo.AdvancePaymentStatus(ctx, ByBooking("missing"), domain.PaymentSucceeded, domain.SourceConfirm)
		assert.ErrorIs(mt, err, ErrNotFound)
		assert.False(mt, advanced)
		assert.Nil(mt, b)
	})

	mt.Run("failed audit insert keeps the advance", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(
			found(mt, bookingDoc("b5", domain.PaymentPending)),
			modified(bookingDoc("b5", domain.PaymentSucceeded)),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
		)

		b, advanced, err := repo.AdvancePaymentStatus(ctx, ByBooking("b5"), domain.PaymentSucceeded, domain.SourceWebhook)
		require.NoError(mt, err)
		assert.True(mt, advanced)
		assert.Equal(mt, domain.PaymentSucceeded, b.PaymentStatus)
	})

	mt.Run("rejects unknown target status", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		_, _, err := repo.AdvancePaymentStatus(ctx, ByBooking("b6"), "refunded", domain.SourceConfirm)
		assert.ErrorIs(mt, err, ErrInvalidStatus)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})
}

func TestMongoOverlapping(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("pending bookings count only inside the hold", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(found(mt, bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: 1}}))

		since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		taken, err := repo.Overlapping(context.Background(), calendar.Of(2025, 3, 12).Time(), calendar.Of(2025, 3, 16).Time(), since)
		require.NoError(mt, err)
		assert.True(mt, taken)

		aggs := sent(mt, "aggregate")
		require.Len(mt, aggs, 1)
		match := aggs[0].Lookup("pipeline", "0", "$match").Document()
		or, err := match.Lookup("$or").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, or, 2)
		assert.Equal(mt, "pending", or[0].Document().Lookup("paymentStatus", "$ne").StringValue())
		assert.True(mt, or[1].Document().Lookup("createdAt", "$gte").Time().Equal(since))
	})

	mt.Run("no match", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(found(mt))

		taken, err := repo.Overlapping(context.Background(), calendar.Of(2025, 4, 1).Time(), calendar.Of(2025, 4, 3).Time(), time.Now())
		require.NoError(mt, err)
		assert.False(mt, taken)
	})
}

func TestMongoListPages(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("second page", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(
			found(mt, bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: 3}}),
			found(mt, bookingDoc("b9", domain.PaymentSucceeded)),
		)

		items, total, err := repo.List(context.Background(), ListFilter{Status: domain.PaymentSucceeded, Page: 1, Size: 2})
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), total)
		require.Len(mt, items, 1)
		assert.Equal(mt, "b9", items[0].ID)
		assert.Equal(mt, "2025-03-10", items[0].CheckIn().String())

		finds := sent(mt, "find")
		require.Len(mt, finds, 1)
		assert.Equal(mt, int64(2), finds[0].Lookup("skip").AsInt64())
		assert.Equal(mt, int64(2), finds[0].Lookup("limit").AsInt64())
		assert.Equal(mt, "succeeded", finds[0].Lookup("filter", "paymentStatus").StringValue())
	})

	mt.Run("empty ledger", func(mt *mtest.T) {
		repo := newMongoRepo(mt)
		mt.AddMockResponses(found(mt), found(mt))

		items, total, err := repo.List(context.Background(), ListFilter{})
		require.NoError(mt, err)
		assert.Zero(mt, total)
		assert.NotNil(mt, items)
		assert.Empty(mt, items)
	})
}
