// Package store defines the durable-store collaborator consumed by the
// recognition and presence services. Implementations live in subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"attendance-worker-go/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the external durable store: signature roster reads, attendance
// bookkeeping writes, and snapshot image persistence.
type Store interface {
	// ListSignatures returns every known face signature with its owner.
	ListSignatures(ctx context.Context) ([]models.SignatureRecord, error)

	// GetOrOpenAttendance returns the attendance record for (personID, day),
	// creating an open record with entry time = now when none exists. The
	// bool reports whether a new record was created.
	GetOrOpenAttendance(ctx context.Context, personID int64, day, now time.Time) (*models.AttendanceRecord, bool, error)

	// GetOpenAttendance returns the currently-open record for (personID, day),
	// or ErrNotFound when the person has no open record.
	GetOpenAttendance(ctx context.Context, personID int64, day time.Time) (*models.AttendanceRecord, error)

	// UpdateAttendance persists the mutable fields of an existing record.
	UpdateAttendance(ctx context.Context, rec *models.AttendanceRecord) error

	// SaveSnapshot persists one face crop for an attendance record and
	// returns the snapshot URI.
	SaveSnapshot(ctx context.Context, attendanceID, personID int64, image []byte) (string, error)
}
