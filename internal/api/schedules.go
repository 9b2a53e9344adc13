package api

import (
	"net/http"

	"github.com/hackgods/hospital-scheduling/internal/schedule"
)

func (h *handlers) availableClinics(w http.ResponseWriter, r *http.Request) {
	t, err := queryType(r, "type")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	ids, err := h.schedules.AvailableClinicIDs(r.Context(), t)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	clinics, err := h.directory.Clinics(r.Context(), ids)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, clinics)
}

func (h *handlers) availableDoctors(w http.ResponseWriter, r *http.Request) {
	clinicID, err := queryUUID(r, "clinic_id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if clinicID == nil {
		h.writeServiceError(w, r, errInvalidQuery.WithField("clinic_id", "is required"))
		return
	}
	t, err := queryType(r, "type")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	ids, err := h.schedules.AvailableDoctorIDs(r.Context(), *clinicID, t)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	doctors, err := h.directory.ActiveDoctors(r.Context(), ids)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, doctors)
}

func (h *handlers) availableDates(w http.ResponseWriter, r *http.Request) {
	f, err := scheduleFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dates, err := h.schedules.AvailableDates(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := AvailableDatesResponse{Dates: make([]string, len(dates))}
	for i, d := range dates {
		resp.Dates[i] = d.Format(dateLayout)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) availableSlots(w http.ResponseWriter, r *http.Request) {
	f, err := scheduleFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	avail, err := h.schedules.Availability(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

func (h *handlers) listSchedules(w http.ResponseWriter, r *http.Request) {
	f, err := scheduleFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	f.IncludeInactive = r.URL.Query().Get("include_inactive") == "true"
	if f.Limit, err = queryInt(r, "limit", 20); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	schedules, err := h.schedules.List(r.Context(), principal(r), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if schedules == nil {
		schedules = []schedule.Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (h *handlers) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	sched, err := h.schedules.Get(r.Context(), principal(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *handlers) scheduleSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	slots, err := h.schedules.AvailableSlots(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if slots == nil {
		slots = []schedule.Slot{}
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *handlers) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	start, end, err := requireWindow(req.StartTime, req.EndTime)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	sched, err := h.schedules.Create(r.Context(), principal(r), schedule.CreateInput{
		DoctorID:        req.DoctorID,
		ClinicID:        req.ClinicID,
		Date:            date,
		StartTime:       start,
		EndTime:         end,
		SlotDuration:    req.SlotDuration,
		AppointmentType: req.AppointmentType,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (h *handlers) bulkCreateSchedules(w http.ResponseWriter, r *http.Request) {
	var req BulkScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	from, err := parseDate("start_date", req.StartDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	to, err := parseDate("end_date", req.EndDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	start, end, err := requireWindow(req.StartTime, req.EndTime)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res, err := h.schedules.BulkCreate(r.Context(), principal(r), schedule.BulkInput{
		DoctorID:        req.DoctorID,
		ClinicID:        req.ClinicID,
		StartDate:       from,
		EndDate:         to,
		Weekdays:        req.Weekdays,
		StartTime:       start,
		EndTime:         end,
		SlotDuration:    req.SlotDuration,
		AppointmentType: req.AppointmentType,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if res.Created == nil {
		res.Created = []schedule.Schedule{}
	}
	if res.Skipped == nil {
		res.Skipped = []schedule.Schedule{}
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handlers) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.schedules.Delete(r.Context(), principal(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deactivateDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	doctor, err := h.directory.DeactivateDoctor(r.Context(), principal(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doctor)
}

func requireWindow(start, end *schedule.TimeOfDay) (schedule.TimeOfDay, schedule.TimeOfDay, error) {
	s, err := requireTime("start_time", start)
	if err != nil {
		return 0, 0, err
	}
	e, err := requireTime("end_time", end)
	if err != nil {
		return 0, 0, err
	}
	return s, e, nil
}
