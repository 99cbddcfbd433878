package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// TaskRepository reads the stored task texts.
type TaskRepository interface {
	List(ctx context.Context) ([]string, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT text FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}
