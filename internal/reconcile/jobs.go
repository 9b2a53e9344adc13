package reconcile

import (
	"context"
	"time"
)

const (
	JobCompleteAppointments = "complete-appointments"
	JobPrepareChats         = "prepare-chats"
	JobPurgeChats           = "purge-chats"
)

type AppointmentCompleter interface {
	CompleteDue(ctx context.Context) (int, error)
}

type ChatSweeper interface {
	PrepareUpcoming(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context) (closed, purged int, err error)
}

func CompleteAppointments(svc AppointmentCompleter, every time.Duration) Job {
	return Job{Name: JobCompleteAppointments, Interval: every, Run: svc.CompleteDue}
}

func PrepareChats(svc ChatSweeper, every time.Duration) Job {
	return Job{Name: JobPrepareChats, Interval: every, Run: svc.PrepareUpcoming}
}

// PurgeChats counts both sessions time-closed and sessions deleted.
func PurgeChats(svc ChatSweeper, every time.Duration) Job {
	return Job{
		Name:     JobPurgeChats,
		Interval: every,
		Run: func(ctx context.Context) (int, error) {
			closed, purged, err := svc.PurgeExpired(ctx)
			return closed + purged, err
		},
	}
}
