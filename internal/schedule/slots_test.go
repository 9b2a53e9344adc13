package schedule

import (
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(start, end string, minutes int) Schedule {
	return Schedule{
		Date:         time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime:    MustParseTimeOfDay(start),
		EndTime:      MustParseTimeOfDay(end),
		SlotDuration: minutes,
	}
}

func TestComputeSlots(t *testing.T) {
	tests := []struct {
		name  string
		sched Schedule
		want  []string
	}{
		{"exact tiling", window("14:00", "15:00", 15), []string{"14:00", "14:15", "14:30", "14:45"}},
		{"partial tail dropped", window("09:00", "10:00", 25), []string{"09:00", "09:25"}},
		{"window shorter than a slot", window("09:00", "09:10", 15), nil},
		{"single slot", window("09:00", "09:30", 30), []string{"09:00"}},
		{"zero duration", window("09:00", "10:00", 0), nil},
		{"inverted window", window("10:00", "09:00", 15), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := ComputeSlots(tt.sched)
			var starts []string
			for _, s := range slots {
				starts = append(starts, s.Start.String())
				assert.Equal(t, tt.sched.SlotLength(), (s.End - s.Start).Duration())
				assert.LessOrEqual(t, s.End, tt.sched.EndTime)
			}
			assert.Equal(t, tt.want, starts)
		})
	}
}

func TestComputeSlotsCount(t *testing.T) {
	for minutes := 1; minutes <= 90; minutes++ {
		s := window("08:00", "12:17", minutes)
		want := int((s.EndTime - s.StartTime).Duration() / s.SlotLength())
		assert.Len(t, ComputeSlots(s), want, "slot duration %d", minutes)
	}
}

func TestAvailableSlots(t *testing.T) {
	s := window("14:00", "15:00", 15)
	booked := []Slot{SlotAt(s, MustParseTimeOfDay("14:15"))}

	free := AvailableSlots(s, booked)
	require.Len(t, free, 3)
	assert.False(t, Contains(free, booked[0]))
	assert.True(t, Contains(free, SlotAt(s, MustParseTimeOfDay("14:30"))))

	// A booking that does not line up with the grid frees nothing.
	misaligned := []Slot{{Start: MustParseTimeOfDay("14:10"), End: MustParseTimeOfDay("14:25")}}
	assert.Len(t, AvailableSlots(s, misaligned), 4)
}

func TestTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(9*time.Hour+30*time.Minute), tod)
	assert.Equal(t, "09:30", tod.String())

	tod, err = ParseTimeOfDay("17:45:10")
	require.NoError(t, err)
	assert.Equal(t, "17:45:10", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
	_, err = ParseTimeOfDay("noon")
	assert.Error(t, err)

	var decoded struct {
		At TimeOfDay `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":"08:05"}`), &decoded))
	assert.Equal(t, MustParseTimeOfDay("08:05"), decoded.At)
	out, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"08:05"}`, string(out))
}

func TestTimeOfDayPgtype(t *testing.T) {
	tod := MustParseTimeOfDay("13:20")
	v, err := tod.TimeValue()
	require.NoError(t, err)
	assert.Equal(t, pgtype.Time{Microseconds: (13*time.Hour + 20*time.Minute).Microseconds(), Valid: true}, v)

	var back TimeOfDay
	require.NoError(t, back.ScanTime(v))
	assert.Equal(t, tod, back)
	assert.Error(t, back.ScanTime(pgtype.Time{}))
}

func TestWeekdays(t *testing.T) {
	days, err := ParseWeekdays("m, w f")
	require.NoError(t, err)
	assert.Equal(t, map[time.Weekday]bool{time.Monday: true, time.Wednesday: true, time.Friday: true}, days)

	_, err = ParseWeekdays("MX")
	assert.Error(t, err)
	_, err = ParseWeekdays("")
	assert.Error(t, err)

	// 2026-03-02 is a Monday.
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	dates := DatesOn(from, from.AddDate(0, 0, 13), map[time.Weekday]bool{time.Thursday: true, time.Sunday: true})
	require.Len(t, dates, 4)
	assert.Equal(t, time.Thursday, dates[0].Weekday())
	assert.Equal(t, 5, dates[0].Day())
	assert.Equal(t, time.Sunday, dates[1].Weekday())
}

func TestMomentOnDaylightSavingDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := window("12:30", "14:00", 30)
	s.Date = time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	starts := s.StartsAt(ny)
	assert.Equal(t, time.Date(2026, 3, 8, 12, 30, 0, 0, ny), starts)
	assert.Equal(t, time.Date(2026, 3, 8, 14, 0, 0, 0, ny), s.EndsAt(ny))

	m := MomentOf(time.Date(2026, 3, 8, 13, 0, 0, 0, ny))
	assert.Equal(t, s.Date, m.Date)
	assert.Equal(t, MustParseTimeOfDay("13:00"), m.Time)
}
