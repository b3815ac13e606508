package repository

import (
	"context"
	"errors"
	"strings"

	"competenest/internal/common/db"
	"competenest/internal/submission/model"
)

var (
	ErrSubmittedTestcaseNotFound = errors.New("submitted testcase not found")
)

// SubmittedTestcaseRepository defines persistence for per-testcase tracking rows.
type SubmittedTestcaseRepository interface {
	CreateBatch(ctx context.Context, tx db.Transaction, rows []*model.SubmittedTestcase) error
	GetByID(ctx context.Context, tx db.Transaction, id string) (*model.SubmittedTestcase, error)
	UpdateResult(ctx context.Context, tx db.Transaction, id string, output string, statusCode int) error
	ListBySubmission(ctx context.Context, tx db.Transaction, submissionID string) ([]*model.SubmittedTestcase, error)
}

// MySQLSubmittedTestcaseRepository implements SubmittedTestcaseRepository with MySQL.
type MySQLSubmittedTestcaseRepository struct {
	db db.Provider
}

// NewSubmittedTestcaseRepository creates a submitted testcase repository.
func NewSubmittedTestcaseRepository(provider db.Provider) SubmittedTestcaseRepository {
	return &MySQLSubmittedTestcaseRepository{db: provider}
}

const submittedTestcaseColumns = "id, submission_id, testcase_id, output, status_code, updated_at"

// CreateBatch inserts all tracking rows of one submission in a single statement.
func (r *MySQLSubmittedTestcaseRepository) CreateBatch(ctx context.Context, tx db.Transaction, rows []*model.SubmittedTestcase) error {
	if len(rows) == 0 {
		return errors.New("rows are required")
	}
	querier, err := r.querier(tx)
	if err != nil {
		return err
	}

	var builder strings.Builder
	builder.WriteString("INSERT INTO submitted_testcases (id, submission_id, testcase_id, output, status_code) VALUES ")
	args := make([]interface{}, 0, len(rows)*5)
	for i, row := range rows {
		if row == nil {
			return errors.New("row is nil")
		}
		if row.ID == "" || row.SubmissionID == "" || row.TestcaseID == "" {
			return errors.New("row ids are required")
		}
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, row.ID, row.SubmissionID, row.TestcaseID, row.Output, row.StatusCode)
	}

	_, err = querier.Exec(ctx, builder.String(), args...)
	return err
}

// GetByID retrieves one tracking row by its callback id.
func (r *MySQLSubmittedTestcaseRepository) GetByID(ctx context.Context, tx db.Transaction, id string) (*model.SubmittedTestcase, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	querier, err := r.querier(tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + submittedTestcaseColumns + " FROM submitted_testcases WHERE id = ? LIMIT 1"
	row := querier.QueryRow(ctx, query, id)
	testcase := &model.SubmittedTestcase{}
	if err := row.Scan(
		&testcase.ID,
		&testcase.SubmissionID,
		&testcase.TestcaseID,
		&testcase.Output,
		&testcase.StatusCode,
		&testcase.UpdatedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmittedTestcaseNotFound
		}
		return nil, err
	}
	return testcase, nil
}

// UpdateResult writes the judge's output and raw status onto the tracking row.
func (r *MySQLSubmittedTestcaseRepository) UpdateResult(ctx context.Context, tx db.Transaction, id string, output string, statusCode int) error {
	if id == "" {
		return errors.New("id is required")
	}
	querier, err := r.querier(tx)
	if err != nil {
		return err
	}
	// No affected-rows check: MySQL reports 0 for no-op updates, which a
	// retried callback with identical payload legitimately produces.
	query := "UPDATE submitted_testcases SET output = ?, status_code = ?, updated_at = NOW() WHERE id = ?"
	_, err = querier.Exec(ctx, query, output, statusCode, id)
	return err
}

// ListBySubmission returns all tracking rows of a submission.
func (r *MySQLSubmittedTestcaseRepository) ListBySubmission(ctx context.Context, tx db.Transaction, submissionID string) ([]*model.SubmittedTestcase, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	querier, err := r.querier(tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + submittedTestcaseColumns + " FROM submitted_testcases WHERE submission_id = ? ORDER BY id"
	rows, err := querier.Query(ctx, query, submissionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*model.SubmittedTestcase
	for rows.Next() {
		testcase := &model.SubmittedTestcase{}
		if err := rows.Scan(
			&testcase.ID,
			&testcase.SubmissionID,
			&testcase.TestcaseID,
			&testcase.Output,
			&testcase.StatusCode,
			&testcase.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, testcase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *MySQLSubmittedTestcaseRepository) querier(tx db.Transaction) (db.Querier, error) {
	if tx != nil {
		return tx, nil
	}
	database, err := db.CurrentDatabase(r.db)
	if err != nil {
		return nil, err
	}
	return database, nil
}
