package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attendance-worker-go/internal/models"
	"attendance-worker-go/internal/store"
)

const attendanceColumns = `id, person_id, day, entry_time, exit_time, last_seen, is_present, duration_minutes`

// GetOrOpenAttendance returns the attendance row for (personID, day),
// creating an open one when none exists. The unique (person_id, day)
// constraint makes concurrent opens collapse onto a single row.
func (s *Store) GetOrOpenAttendance(ctx context.Context, personID int64, day, now time.Time) (*models.AttendanceRecord, bool, error) {
	day = day.Truncate(24 * time.Hour)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (person_id, day, entry_time, last_seen, is_present)
		VALUES ($1, $2, $3, $3, TRUE)
		ON CONFLICT (person_id, day) DO NOTHING
	`, personID, day, now)
	if err != nil {
		return nil, false, fmt.Errorf("opening attendance: %w", err)
	}

	inserted, _ := res.RowsAffected()

	rec, err := s.getAttendance(ctx, personID, day)
	if err != nil {
		return nil, false, err
	}
	return rec, inserted > 0, nil
}

// GetOpenAttendance returns the present-flagged row for (personID, day),
// or store.ErrNotFound.
func (s *Store) GetOpenAttendance(ctx context.Context, personID int64, day time.Time) (*models.AttendanceRecord, error) {
	day = day.Truncate(24 * time.Hour)

	row := s.db.QueryRowContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance
		WHERE person_id = $1 AND day = $2 AND is_present
	`, personID, day)

	return scanAttendance(row)
}

// UpdateAttendance persists the mutable fields of an existing record.
func (s *Store) UpdateAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance
		SET entry_time = $2, exit_time = $3, last_seen = $4,
		    is_present = $5, duration_minutes = $6
		WHERE id = $1
	`, rec.ID, nullTime(rec.EntryTime), nullTime(rec.ExitTime), nullTime(rec.LastSeen),
		rec.Present, rec.DurationMinutes)
	if err != nil {
		return fmt.Errorf("updating attendance %d: %w", rec.ID, err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) getAttendance(ctx context.Context, personID int64, day time.Time) (*models.AttendanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance
		WHERE person_id = $1 AND day = $2
	`, personID, day)

	return scanAttendance(row)
}

func scanAttendance(row *sql.Row) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	var entry, exit, lastSeen sql.NullTime

	err := row.Scan(&rec.ID, &rec.PersonID, &rec.Day, &entry, &exit, &lastSeen,
		&rec.Present, &rec.DurationMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning attendance row: %w", err)
	}

	rec.EntryTime = entry.Time
	rec.ExitTime = exit.Time
	rec.LastSeen = lastSeen.Time
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
