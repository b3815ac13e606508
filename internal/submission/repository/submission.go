package repository

import (
	"context"
	"errors"

	"competenest/internal/common/db"
	"competenest/internal/submission/model"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
)

// SubmissionRepository defines submission persistence interfaces.
// GetForUpdate and ApplyEvaluation must run inside the same transaction:
// the row lock taken by GetForUpdate is what serializes concurrent
// read-decide-write sequences across testcases of one submission.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error)
	GetForUpdate(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error)
	ApplyEvaluation(ctx context.Context, tx db.Transaction, submissionID string, acceptedDelta int, status model.SubmissionStatus) error
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Provider
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(provider db.Provider) SubmissionRepository {
	return &MySQLSubmissionRepository{db: provider}
}

const submissionColumns = "submission_id, problem_id, user_id, code, language_id, total_testcases, evaluated_testcases, accepted_testcases, status, created_at, updated_at"

// Create inserts a submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	if submission.ProblemID == "" {
		return errors.New("problemID is required")
	}
	if submission.UserID == "" {
		return errors.New("userID is required")
	}
	if submission.TotalTestcases <= 0 {
		return errors.New("totalTestcases must be positive")
	}

	querier, err := r.querier(tx)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO submissions
		(submission_id, problem_id, user_id, code, language_id, total_testcases, evaluated_testcases, accepted_testcases, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = querier.Exec(
		ctx,
		query,
		submission.SubmissionID,
		submission.ProblemID,
		submission.UserID,
		submission.Code,
		submission.LanguageID,
		submission.TotalTestcases,
		submission.EvaluatedTestcases,
		submission.AcceptedTestcases,
		string(submission.Status),
	)
	return err
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	querier, err := r.querier(tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE submission_id = ? LIMIT 1"
	return scanSubmission(querier.QueryRow(ctx, query, submissionID))
}

// GetForUpdate retrieves a submission under a pessimistic write lock.
// The lock is held until the transaction commits or rolls back, so two
// concurrent ingestions of different testcases serialize here.
func (r *MySQLSubmissionRepository) GetForUpdate(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE submission_id = ? FOR UPDATE"
	return scanSubmission(tx.QueryRow(ctx, query, submissionID))
}

// ApplyEvaluation increments the evaluated counter and writes the decided
// status in one statement. Callers must hold the row lock from GetForUpdate
// on the same transaction.
func (r *MySQLSubmissionRepository) ApplyEvaluation(ctx context.Context, tx db.Transaction, submissionID string, acceptedDelta int, status model.SubmissionStatus) error {
	if tx == nil {
		return errors.New("transaction is required")
	}
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	query := `
		UPDATE submissions
		SET evaluated_testcases = evaluated_testcases + 1,
		    accepted_testcases = accepted_testcases + ?,
		    status = ?,
		    updated_at = NOW()
		WHERE submission_id = ?
	`
	result, err := tx.Exec(ctx, query, acceptedDelta, string(status), submissionID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (r *MySQLSubmissionRepository) querier(tx db.Transaction) (db.Querier, error) {
	if tx != nil {
		return tx, nil
	}
	database, err := db.CurrentDatabase(r.db)
	if err != nil {
		return nil, err
	}
	return database, nil
}

func scanSubmission(row db.Row) (*model.Submission, error) {
	submission := &model.Submission{}
	var status string
	if err := row.Scan(
		&submission.SubmissionID,
		&submission.ProblemID,
		&submission.UserID,
		&submission.Code,
		&submission.LanguageID,
		&submission.TotalTestcases,
		&submission.EvaluatedTestcases,
		&submission.AcceptedTestcases,
		&status,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	submission.Status = model.SubmissionStatus(status)
	return submission, nil
}
