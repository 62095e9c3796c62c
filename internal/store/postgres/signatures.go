package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"attendance-worker-go/internal/models"
)

// ListSignatures returns every signature joined with its owner, active
// people only. Vector dimensionality is not validated here; the signature
// cache filters defensively on its side.
func (s *Store) ListSignatures(ctx context.Context) ([]models.SignatureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.person_id, f.embedding,
		       p.username, p.full_name, p.role, p.student_id_number, p.employee_id_number
		FROM face_signatures f
		JOIN people p ON p.id = f.person_id
		WHERE p.active
		ORDER BY f.person_id, f.id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing signatures: %w", err)
	}
	defer rows.Close()

	var records []models.SignatureRecord
	for rows.Next() {
		var rec models.SignatureRecord
		var vec pgvector.Vector
		if err := rows.Scan(
			&rec.PersonID, &vec,
			&rec.Person.Username, &rec.Person.FullName, &rec.Person.Role,
			&rec.Person.StudentIDNumber, &rec.Person.EmployeeIDNumber,
		); err != nil {
			return nil, fmt.Errorf("scanning signature row: %w", err)
		}
		rec.Person.ID = rec.PersonID
		rec.Vector = vec.Slice()
		records = append(records, rec)
	}

	return records, rows.Err()
}
