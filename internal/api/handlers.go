package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/appointment"
	"github.com/hackgods/appointment-notifications/internal/auth"
)

func createAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.PrincipalFrom(r.Context())

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		timeslot, err := parseTimeslot(req.Timeslot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_timeslot", err.Error())
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), caller, req.DoctorID, timeslot)
		if err != nil {
			handleAppointmentError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func listAppointmentsHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.PrincipalFrom(r.Context())

		list, err := svc.ListAppointments(r.Context(), caller)
		if err != nil {
			handleAppointmentError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}

func approveAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.PrincipalFrom(r.Context())

		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.ApproveAppointment(r.Context(), caller, id)
		if err != nil {
			handleAppointmentError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func cancelAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.PrincipalFrom(r.Context())

		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), caller, id)
		if err != nil {
			handleAppointmentError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func rescheduleAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.PrincipalFrom(r.Context())

		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		timeslot, err := parseTimeslot(req.Timeslot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_timeslot", err.Error())
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), caller, id, timeslot)
		if err != nil {
			handleAppointmentError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func handleAppointmentError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "slot_unavailable", "Doctor not available at the selected timeslot")
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		logger.Error("appointment request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "request failed, please retry")
	}
}
