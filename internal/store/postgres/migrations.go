package postgres

import "context"

// Schema statements are idempotent so the worker can bootstrap a fresh
// database on first start.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS people (
		id                 BIGSERIAL PRIMARY KEY,
		username           TEXT NOT NULL UNIQUE,
		full_name          TEXT NOT NULL DEFAULT '',
		role               TEXT NOT NULL DEFAULT 'student',
		student_id_number  TEXT NOT NULL DEFAULT '',
		employee_id_number TEXT NOT NULL DEFAULT '',
		active             BOOLEAN NOT NULL DEFAULT TRUE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS face_signatures (
		id         BIGSERIAL PRIMARY KEY,
		person_id  BIGINT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		embedding  vector(128) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS attendance (
		id               BIGSERIAL PRIMARY KEY,
		person_id        BIGINT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		day              DATE NOT NULL,
		entry_time       TIMESTAMPTZ,
		exit_time        TIMESTAMPTZ,
		last_seen        TIMESTAMPTZ,
		is_present       BOOLEAN NOT NULL DEFAULT TRUE,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		UNIQUE (person_id, day)
	)`,

	`CREATE INDEX IF NOT EXISTS attendance_day_present_idx
		ON attendance (day, is_present)`,

	`CREATE TABLE IF NOT EXISTS attendance_photos (
		id            BIGSERIAL PRIMARY KEY,
		attendance_id BIGINT NOT NULL REFERENCES attendance(id) ON DELETE CASCADE,
		uri           TEXT NOT NULL,
		captured_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
