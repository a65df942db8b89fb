package repository

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/krobus00/copy-trader-service/internal/entity"
)

type CopyActionRepository struct {
	db *sqlx.DB
}

func NewCopyActionRepository(db *sqlx.DB) *CopyActionRepository {
	return &CopyActionRepository{db: db}
}

func (r *CopyActionRepository) Create(ctx context.Context, action *entity.CopyAction) error {
	if strings.TrimSpace(action.ID) == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(action.TableName()).
		Columns(
			"id",
			"leader_id",
			"follower_id",
			"action",
			"market",
			"side",
			"size",
			"price",
			"client_order_id",
			"status",
			"error_message",
			"created_at",
		).
		Values(
			action.ID,
			action.LeaderID,
			action.FollowerID,
			action.Action,
			action.Market,
			action.Side,
			action.Size,
			action.Price,
			action.ClientOrderID,
			action.Status,
			action.ErrorMessage,
			action.CreatedAt,
		)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *CopyActionRepository) GetByPair(ctx context.Context, leaderID, followerID string, limit uint64) ([]entity.CopyAction, error) {
	if limit == 0 {
		limit = 100
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From("copy_actions").
		Where(sq.Eq{"leader_id": leaderID, "follower_id": followerID}).
		OrderBy("created_at desc").
		Limit(limit)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var actions []entity.CopyAction
	err = r.db.SelectContext(ctx, &actions, query, args...)
	if err != nil {
		return nil, err
	}

	return actions, nil
}

func (r *CopyActionRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM copy_actions WHERE status = $1", status)
	if err != nil {
		return 0, err
	}

	return count, nil
}
