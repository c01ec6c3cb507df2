package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"lahari_hotel/internal/app"
	"lahari_hotel/internal/domain"
)

type Handlers struct {
	Avail     *app.AvailabilityService
	Bookings  *app.BookingService
	Reconcile *app.ReconcileService
	Loc       *time.Location
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	if h.Loc == nil {
		h.Loc = time.UTC
	}
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/rooms", h.listRooms)
	s.mux.Get("/v1/rooms/{id}/availability", h.roomAvailability)
	s.mux.Get("/v1/rooms/{id}/bookings", h.listRoomBookings)

	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Get("/v1/bookings", h.listUserBookings)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
	s.mux.Post("/v1/bookings/{id}/cancel", h.transition((*app.BookingService).Cancel))
	s.mux.Post("/v1/bookings/{id}/check-in", h.transition((*app.BookingService).CheckIn))
	s.mux.Post("/v1/bookings/{id}/check-out", h.transition((*app.BookingService).CheckOut))

	s.mux.Post("/v1/payments/verify", h.verifyPayment)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeDomainErr maps the error taxonomy onto HTTP statuses.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRange), errors.Is(err, domain.ErrCapacityExceeded):
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrRoomUnavailable), errors.Is(err, domain.ErrRoomInactive):
		writeProblem(w, http.StatusConflict, "Room Unavailable", "room no longer available for the selected dates")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, http.StatusConflict, "Invalid Transition", err.Error())
	default:
		log.Error().Err(err).Msg("internal error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// ---- wire DTOs ----

type roomDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	BasePrice   float64  `json:"base_price"`
	MaxGuests   int      `json:"max_guests"`
	Amenities   []string `json:"amenities,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
}

func toRoomDTO(r domain.Room) roomDTO {
	return roomDTO{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		BasePrice:   r.BasePrice,
		MaxGuests:   r.MaxGuests,
		Amenities:   r.Amenities,
		ImageURL:    r.ImageURL,
	}
}

type bookingDTO struct {
	ID              string  `json:"id"`
	RoomID          string  `json:"room_id"`
	UserID          *string `json:"user_id,omitempty"`
	CheckInDate     string  `json:"check_in_date"`
	CheckOutDate    string  `json:"check_out_date"`
	NumGuests       int     `json:"num_guests"`
	GuestName       string  `json:"guest_name"`
	GuestEmail      string  `json:"guest_email"`
	GuestPhone      *string `json:"guest_phone,omitempty"`
	SpecialRequests *string `json:"special_requests,omitempty"`
	TotalAmount     float64 `json:"total_amount"`
	BookingStatus   string  `json:"booking_status"`
	PaymentStatus   string  `json:"payment_status"`
	CreatedAt       string  `json:"created_at"`
}

func toBookingDTO(b domain.Booking) bookingDTO {
	return bookingDTO{
		ID:              b.ID,
		RoomID:          b.RoomID,
		UserID:          b.UserID,
		CheckInDate:     b.Stay.CheckIn.Format("2006-01-02"),
		CheckOutDate:    b.Stay.CheckOut.Format("2006-01-02"),
		NumGuests:       b.NumGuests,
		GuestName:       b.GuestName,
		GuestEmail:      b.GuestEmail,
		GuestPhone:      b.GuestPhone,
		SpecialRequests: b.SpecialRequests,
		TotalAmount:     b.TotalAmount,
		BookingStatus:   string(b.BookingStatus),
		PaymentStatus:   string(b.PaymentStatus),
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toBookingDTOs(bs []domain.Booking) []bookingDTO {
	out := make([]bookingDTO, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingDTO(b))
	}
	return out
}

// ---- rooms ----

func (h *Handlers) parseStay(r *http.Request) (*domain.Stay, error) {
	ci := r.URL.Query().Get("check_in")
	co := r.URL.Query().Get("check_out")
	if ci == "" && co == "" {
		return nil, nil
	}
	in, err := time.ParseInLocation("2006-01-02", ci, h.Loc)
	if err != nil {
		return nil, domain.ErrInvalidRange
	}
	out, err := time.ParseInLocation("2006-01-02", co, h.Loc)
	if err != nil {
		return nil, domain.ErrInvalidRange
	}
	stay, err := domain.NewStay(in, out, h.Loc)
	if err != nil {
		return nil, err
	}
	return &stay, nil
}

func (h *Handlers) listRooms(w http.ResponseWriter, r *http.Request) {
	stay, err := h.parseStay(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Dates", "check_in and check_out must be YYYY-MM-DD with check_out after check_in")
		return
	}

	q := domain.RoomsQuery{}
	if gs := r.URL.Query().Get("guests"); gs != "" {
		g, err := strconv.Atoi(gs)
		if err != nil || g < 1 {
			writeProblem(w, http.StatusBadRequest, "Invalid Guests", "guests must be a positive integer")
			return
		}
		q.Guests = g
	}
	if v := r.URL.Query().Get("min_price"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			q.MinPrice = &p
		}
	}
	if v := r.URL.Query().Get("max_price"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			q.MaxPrice = &p
		}
	}
	if v := r.URL.Query().Get("amenity"); v != "" {
		q.Amenity = &v
	}

	rooms, err := h.Avail.ListAvailableRooms(r.Context(), stay, q)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]roomDTO, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, toRoomDTO(rm))
	}

	etag, body := calcETagAndBody(out)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listRooms body")
	}
}

func (h *Handlers) roomAvailability(w http.ResponseWriter, r *http.Request) {
	stay, err := h.parseStay(r)
	if err != nil || stay == nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Dates", "check_in and check_out are required as YYYY-MM-DD")
		return
	}
	free, err := h.Avail.IsAvailable(r.Context(), chi.URLParam(r, "id"), *stay)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": free})
}

func (h *Handlers) listRoomBookings(w http.ResponseWriter, r *http.Request) {
	since := time.Now().In(h.Loc)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, h.Loc)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Date", "since must be YYYY-MM-DD")
			return
		}
		since = parsed
	}
	bs, err := h.Bookings.ListByRoom(r.Context(), chi.URLParam(r, "id"), since)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bs))
}

// ---- bookings ----

type createBookingRequest struct {
	RoomID          string  `json:"room_id"`
	UserID          *string `json:"user_id,omitempty"`
	CheckInDate     string  `json:"check_in_date"`
	CheckOutDate    string  `json:"check_out_date"`
	NumGuests       int     `json:"num_guests"`
	GuestName       string  `json:"guest_name"`
	GuestEmail      string  `json:"guest_email"`
	GuestPhone      *string `json:"guest_phone,omitempty"`
	SpecialRequests *string `json:"special_requests,omitempty"`
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	in, err := time.ParseInLocation("2006-01-02", req.CheckInDate, h.Loc)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Dates", "check_in_date must be YYYY-MM-DD")
		return
	}
	out, err := time.ParseInLocation("2006-01-02", req.CheckOutDate, h.Loc)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Dates", "check_out_date must be YYYY-MM-DD")
		return
	}
	stay, err := domain.NewStay(in, out, h.Loc)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	b, redirectURL, err := h.Bookings.CreateBooking(r.Context(), domain.CreateBookingInput{
		RoomID:          req.RoomID,
		UserID:          req.UserID,
		Stay:            stay,
		NumGuests:       req.NumGuests,
		GuestName:       req.GuestName,
		GuestEmail:      req.GuestEmail,
		GuestPhone:      req.GuestPhone,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"booking_id": b.ID,
		"url":        redirectURL,
		"booking":    toBookingDTO(b),
	})
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

func (h *Handlers) listUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing user_id", "user_id query parameter is required")
		return
	}
	bs, err := h.Bookings.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bs))
}

func (h *Handlers) transition(op func(*app.BookingService, context.Context, string) (domain.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := op(h.Bookings, r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingDTO(b))
	}
}

// ---- payments ----

type verifyRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", "session_id is required")
		return
	}
	b, err := h.Reconcile.Reconcile(r.Context(), req.SessionID)
	if err != nil {
		// A duplicate/late callback that no longer applies is logged,
		// acknowledged, and answered with the current state rather than
		// bounced back to the provider for endless retries.
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn().Err(err).Str("session_id", req.SessionID).Msg("late payment callback ignored")
			writeJSON(w, http.StatusOK, map[string]any{
				"booking":        toBookingDTO(b),
				"payment_status": string(b.PaymentStatus),
			})
			return
		}
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booking":        toBookingDTO(b),
		"payment_status": string(b.PaymentStatus),
	})
}
