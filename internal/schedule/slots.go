package schedule

import "slices"

// Slot is a fixed-length interval derived from a schedule.
type Slot struct {
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

// ComputeSlots walks [StartTime, EndTime) in SlotDuration steps. A trailing
// step that would run past EndTime is dropped, so the result always has
// floor(window/duration) entries.
func ComputeSlots(s Schedule) []Slot {
	if s.SlotDuration <= 0 || s.EndTime <= s.StartTime {
		return nil
	}

	step := TimeOfDay(s.SlotLength())
	slots := make([]Slot, 0, int((s.EndTime-s.StartTime)/step))
	for cur := s.StartTime; cur < s.EndTime; cur += step {
		end := cur + step
		if end > s.EndTime {
			break
		}
		slots = append(slots, Slot{Start: cur, End: end})
	}
	return slots
}

// AvailableSlots removes every slot exactly matching a booked one.
func AvailableSlots(s Schedule, booked []Slot) []Slot {
	all := ComputeSlots(s)
	if len(booked) == 0 {
		return all
	}
	free := make([]Slot, 0, len(all))
	for _, slot := range all {
		if !slices.Contains(booked, slot) {
			free = append(free, slot)
		}
	}
	return free
}

// SlotAt returns the slot a booking starting at start would occupy.
func SlotAt(s Schedule, start TimeOfDay) Slot {
	return Slot{Start: start, End: start.Add(s.SlotLength())}
}

func Contains(slots []Slot, slot Slot) bool {
	return slices.Contains(slots, slot)
}
