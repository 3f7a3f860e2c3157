package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const operationColumns = "id, job_id, file_id, op_type, detail_json, status, backup_path, started_at, finished_at, error_message"

func scanOperation(scanner rowScanner) (*Operation, error) {
	var (
		id          int64
		jobID       string
		fileID      sql.NullInt64
		opType      string
		detail      sql.NullString
		statusStr   string
		backupPath  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
		errMessage  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&fileID,
		&opType,
		&detail,
		&statusStr,
		&backupPath,
		&startedRaw,
		&finishedRaw,
		&errMessage,
	); err != nil {
		return nil, err
	}

	op := &Operation{
		ID:           id,
		JobID:        jobID,
		FileID:       fileID.Int64,
		OpType:       opType,
		DetailJSON:   detail.String,
		Status:       OperationStatus(statusStr),
		BackupPath:   backupPath.String,
		FinishedAt:   timePtr(finishedRaw),
		ErrorMessage: errMessage.String,
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		op.StartedAt = started
	}
	return op, nil
}

// BeginOperation records the start of one plan action and returns its row id.
func (s *Store) BeginOperation(ctx context.Context, jobID string, fileID int64, opType, detailJSON string) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO operations (job_id, file_id, op_type, detail_json, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		jobID,
		nullableInt64(fileID),
		opType,
		nullableString(detailJSON),
		OperationStatusStarted,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// SetOperationBackup records the backup path taken before a destructive step.
func (s *Store) SetOperationBackup(ctx context.Context, id int64, backupPath string) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE operations SET backup_path = ? WHERE id = ?`,
		nullableString(backupPath),
		id,
	); err != nil {
		return fmt.Errorf("set operation backup: %w", err)
	}
	return nil
}

// FinishOperation records the outcome of a started operation.
func (s *Store) FinishOperation(ctx context.Context, id int64, status OperationStatus, errorMessage string) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE operations SET status = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		status,
		time.Now().UTC().Format(time.RFC3339Nano),
		nullableString(errorMessage),
		id,
	); err != nil {
		return fmt.Errorf("finish operation: %w", err)
	}
	return nil
}

// OperationsForJob returns a job's operations in execution order.
func (s *Store) OperationsForJob(ctx context.Context, jobID string) ([]*Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
