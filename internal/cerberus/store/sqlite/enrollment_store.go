package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Cerberus/server/internal/db"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

type EnrollmentStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewEnrollmentStore(db *sql.DB, writer *dbpkg.Worker) *EnrollmentStore {
	return &EnrollmentStore{db: db, writer: writer}
}

func (s *EnrollmentStore) LoadEnrollments(ctx context.Context) ([]types.FingerprintEnrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT template_id, name, enrolled_at_ms
FROM fingerprint_enrollments
ORDER BY template_id;
`)
	if err != nil {
		return nil, fmt.Errorf("LoadEnrollments query: %w", err)
	}
	defer rows.Close()

	var out []types.FingerprintEnrollment
	for rows.Next() {
		var (
			id         int64
			name       string
			enrolledMs int64
		)
		if err := rows.Scan(&id, &name, &enrolledMs); err != nil {
			return nil, fmt.Errorf("LoadEnrollments scan: %w", err)
		}
		out = append(out, types.FingerprintEnrollment{
			TemplateID: types.TemplateID(id),
			Name:       name,
			EnrolledAt: time.UnixMilli(enrolledMs).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadEnrollments rows: %w", err)
	}
	return out, nil
}

func (s *EnrollmentStore) ReplaceEnrollments(ctx context.Context, enrollments []types.FingerprintEnrollment) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fingerprint_enrollments;`); err != nil {
			return fmt.Errorf("ReplaceEnrollments clear: %w", err)
		}
		for _, e := range enrollments {
			at := e.EnrolledAt
			if at.IsZero() {
				at = time.Now().UTC()
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO fingerprint_enrollments(template_id, name, enrolled_at_ms)
VALUES (?, ?, ?);
`, int64(e.TemplateID), e.Name, at.UTC().UnixMilli()); err != nil {
				return fmt.Errorf("ReplaceEnrollments insert %d: %w", e.TemplateID, err)
			}
		}
		return nil
	})
}
