package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SaveSnapshot writes one face crop to the snapshot directory and records it
// against the attendance row. Returns the file URI.
func (s *Store) SaveSnapshot(ctx context.Context, attendanceID, personID int64, image []byte) (string, error) {
	dir := filepath.Join(s.snapshotDir, fmt.Sprintf("%d", personID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}

	name := fmt.Sprintf("%d_%s.jpg", personID, uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_photos (attendance_id, uri) VALUES ($1, $2)
	`, attendanceID, path); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("recording snapshot: %w", err)
	}

	return path, nil
}
