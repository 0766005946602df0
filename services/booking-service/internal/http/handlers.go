// Package httpx is the public booking API and the owner API.
package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/availability"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/calendar"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/domain"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/payment"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/repository"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/service"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/validation"
)

const (
	msgCreateFailed  = "Failed to create booking"
	msgConfirmFailed = "Failed to confirm payment"
	msgListFailed    = "Failed to load bookings"
)

type Handler struct {
	svc  *service.BookingSvc
	feed *availability.Synchronizer
	pay  payment.Provider
	log  *logrus.Logger
}

func NewHandler(svc *service.BookingSvc, feed *availability.Synchronizer, pay payment.Provider, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, feed: feed, pay: pay, log: log}
}

// POST /api/bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var req validation.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, msgCreateFailed)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/bookings/confirm-payment
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var in struct {
		PaymentIntentID string `json:"paymentIntentId"`
		BookingID       string `json:"bookingId"`
	}
	// a malformed body is reported as missing fields
	_ = c.ShouldBindJSON(&in)
	status, err := h.svc.Confirm(c.Request.Context(), in.BookingID, in.PaymentIntentID)
	if err != nil {
		h.writeError(c, err, msgConfirmFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// POST /api/bookings/webhook
func (h *Handler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
		return
	}
	sig := ""
	if h.pay != nil {
		sig = h.pay.Signature(c.Request.Header)
	}
	err = h.svc.HandleWebhook(c.Request.Context(), body, sig)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, payment.ErrInvalidSignature), errors.Is(err, payment.ErrMalformedEvent):
		c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
	default:
		// non-2xx makes the provider redeliver
		h.log.WithError(err).Error("webhook not recorded")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook not recorded"})
	}
}

// GET /api/blocked-dates
func (h *Handler) BlockedDates(c *gin.Context) {
	ranges, err := h.feed.Blocked(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Warn("serving blocked dates without a successful sync")
		c.JSON(http.StatusInternalServerError, ranges)
		return
	}
	c.JSON(http.StatusOK, ranges)
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	out := gin.H{"status": "ok", "lastSync": nil}
	if at, ok := h.feed.Cache().LastSynced(); ok {
		out["lastSync"] = at.UTC()
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/admin/bookings?status=&from=&to=&page=1&size=20
func (h *Handler) ListBookings(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	f := repository.ListFilter{Page: page - 1, Size: size}

	if s := c.Query("status"); s != "" {
		f.Status = domain.PaymentStatus(s)
		if !f.Status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown payment status"})
			return
		}
	}
	var ok bool
	if f.From, ok = queryDate(c, "from"); !ok {
		return
	}
	if f.To, ok = queryDate(c, "to"); !ok {
		return
	}

	items, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err, msgListFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": page})
}

func queryDate(c *gin.Context, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, true
	}
	d, err := calendar.Parse(v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + key + " date"})
		return time.Time{}, false
	}
	return d.Time(), true
}

// GET /api/admin/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, msgListFailed)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	var (
		verr       *validation.Error
		notSucc    *service.PaymentNotSucceededError
		unrecorded *service.UnrecordedPaymentError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.Is(err, service.ErrUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "Dates unavailable"})
	case errors.Is(err, service.ErrMissingConfirmFields):
		c.JSON(http.StatusBadRequest, gin.H{"error": "PaymentIntent ID and Booking ID are required"})
	case errors.Is(err, service.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case errors.As(err, &notSucc):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment not succeeded: " + notSucc.Status})
	case errors.Is(err, service.ErrIntentMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "PaymentIntent does not match booking"})
	case errors.Is(err, service.ErrPaymentProvider):
		c.JSON(http.StatusBadGateway, gin.H{"error": fallback, "details": err.Error()})
	case errors.As(err, &unrecorded):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":           fallback,
			"details":         err.Error(),
			"paymentIntentId": unrecorded.IntentID,
		})
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback, "details": err.Error()})
	}
}
