package api

import (
	"net/http"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
	"github.com/hackgods/hospital-scheduling/internal/chat"
)

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	start, err := requireTime("start_time", req.StartTime)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	appt, err := h.appointments.CreateAppointment(r.Context(), principal(r), req.ScheduleID, start)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, appt)
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	var f appointment.ListFilter
	var err error

	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		f.Status = appointment.AppointmentStatus(s)
		if !f.Status.Valid() {
			h.writeServiceError(w, r, errInvalidQuery.WithField("status", "unknown appointment status"))
			return
		}
	}
	if f.AppointmentType, err = queryType(r, "appointment_type"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if f.Limit, err = queryInt(r, "limit", 20); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	appts, err := h.appointments.ListAppointments(r.Context(), principal(r), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if appts == nil {
		appts = []appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	appt, err := h.appointments.GetAppointment(r.Context(), principal(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req CancelAppointmentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}

	appt, err := h.appointments.CancelAppointment(r.Context(), principal(r), id, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req RescheduleAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	start, err := requireTime("new_start_time", req.NewStartTime)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res, err := h.appointments.RescheduleAppointment(r.Context(), principal(r), id, req.NewScheduleID, start)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) chatBacklog(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "sessionID")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	after, err := queryInt(r, "after", 0)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	msgs, err := h.chats.Backlog(r.Context(), principal(r), sessionID, int64(after), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handlers) closeChat(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "sessionID")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if _, err := h.chats.Close(r.Context(), principal(r), sessionID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
