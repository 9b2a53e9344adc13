package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/schedule"
)

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidBody.WithField("body", err.Error())
	}
	return nil
}

// requireTime rejects a time of day absent from the request body. 00:00 is
// a valid slot start, so the zero value cannot stand in for "missing".
func requireTime(field string, t *schedule.TimeOfDay) (schedule.TimeOfDay, error) {
	if t == nil {
		return 0, errMissingField.WithField(field, "is required")
	}
	return *t, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errInvalidPath.WithField(name, "must be a valid UUID")
	}
	return id, nil
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, errInvalidQuery.WithField(key, "must be a valid UUID")
	}
	return &id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errInvalidQuery.WithField(key, "must be an integer")
	}
	return n, nil
}

func parseDate(field, v string) (time.Time, error) {
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, errInvalidQuery.WithField(field, "must be a date in YYYY-MM-DD format")
	}
	return d, nil
}

func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	d, err := parseDate(key, v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func queryType(r *http.Request, key string) (schedule.AppointmentType, error) {
	t := schedule.AppointmentType(r.URL.Query().Get(key))
	if t != "" && !t.Valid() {
		return "", schedule.ErrInvalidAppointmentType.WithField(key, "must be physical or online")
	}
	return t, nil
}

// scheduleFilter reads the doctor_id, clinic_id, type and date filters
// shared by the availability and schedule listings.
func scheduleFilter(r *http.Request) (schedule.ListFilter, error) {
	var f schedule.ListFilter
	var err error
	if f.DoctorID, err = queryUUID(r, "doctor_id"); err != nil {
		return f, err
	}
	if f.ClinicID, err = queryUUID(r, "clinic_id"); err != nil {
		return f, err
	}
	if f.AppointmentType, err = queryType(r, "type"); err != nil {
		return f, err
	}
	if f.Date, err = queryDate(r, "date"); err != nil {
		return f, err
	}
	return f, nil
}
