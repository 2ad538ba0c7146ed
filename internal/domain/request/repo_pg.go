package request

import (
	"context"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/symptra/symptra/internal/platform/db"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

var requestCols = []string{
	"id", "type", "status", "data", "submitted_by", "reviewed_by",
	"review_notes", "reviewed_at", "created_at", "updated_at",
}

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	var data []byte
	err := row.Scan(&r.ID, &r.Type, &r.Status, &data, &r.SubmittedBy, &r.ReviewedBy,
		&r.ReviewNotes, &r.ReviewedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Data = data
	return &r, nil
}

func (s *storePG) Create(ctx context.Context, r *Request) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	query, args, err := psql.Insert("requests").
		Columns("id", "type", "status", "data", "submitted_by", "created_at", "updated_at").
		Values(r.ID, r.Type, r.Status, []byte(r.Data), r.SubmittedBy, r.CreatedAt, r.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.conn(ctx).Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return newError(KindDuplicateID, "request %s already exists", r.ID)
		}
		return storeUnavailable("create request", err)
	}
	return nil
}

func (s *storePG) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	query, args, err := psql.Select(requestCols...).From("requests").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	r, err := scanRequest(s.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newError(KindNotFound, "request %s not found", id)
	}
	if err != nil {
		return nil, storeUnavailable("get request", err)
	}
	return r, nil
}

func (s *storePG) ListBySubmitter(ctx context.Context, submitter string, opts ListOptions) ([]*Request, int, error) {
	return s.list(ctx, sq.Eq{"submitted_by": submitter}, opts)
}

func (s *storePG) ListByStatus(ctx context.Context, status Status, opts ListOptions) ([]*Request, int, error) {
	if status == "" {
		return s.list(ctx, sq.And{}, opts)
	}
	return s.list(ctx, sq.Eq{"status": status}, opts)
}

func (s *storePG) list(ctx context.Context, where sq.Sqlizer, opts ListOptions) ([]*Request, int, error) {
	cond := sq.And{where}
	if len(opts.Types) > 0 {
		types := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		cond = append(cond, sq.Eq{"type": types})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("requests").Where(cond).ToSql()
	if err != nil {
		return nil, 0, err
	}
	sel := psql.Select(requestCols...).From("requests").Where(cond).
		OrderBy("created_at DESC", "id DESC")
	if opts.Limit > 0 {
		sel = sel.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		sel = sel.Offset(uint64(opts.Offset))
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, 0, err
	}

	var total int
	items := []*Request{}
	err = db.WithTxOptions(ctx, s.pool, db.ReadSnapshot, func(ctx context.Context) error {
		if err := s.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return storeUnavailable("count requests", err)
		}
		rows, err := s.conn(ctx).Query(ctx, query, args...)
		if err != nil {
			return storeUnavailable("list requests", err)
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRequest(rows)
			if err != nil {
				return storeUnavailable("scan request", err)
			}
			items = append(items, r)
		}
		if err := rows.Err(); err != nil {
			return storeUnavailable("list requests", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, asStoreError("list requests", err)
	}
	return items, total, nil
}

// CompareAndSetStatus relies on the row-level guard in the UPDATE's WHERE
// clause; of two racing reviewers only one sees a returned row. The loser
// reads the winner's row in the same transaction.
func (s *storePG) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status, reviewer, notes string) (*Request, error) {
	if err := checkTransition(expected, next); err != nil {
		return nil, err
	}
	query, args, err := psql.Update("requests").
		Set("status", next).
		Set("reviewed_by", reviewer).
		Set("review_notes", notes).
		Set("reviewed_at", sq.Expr("NOW()")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": expected}).
		Suffix("RETURNING " + strings.Join(requestCols, ", ")).
		ToSql()
	if err != nil {
		return nil, err
	}

	var updated *Request
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		r, err := scanRequest(s.conn(ctx).QueryRow(ctx, query, args...))
		if err == nil {
			updated = r
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return storeUnavailable("update request status", err)
		}

		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return &Error{
			Kind:    KindInvalidStateTransition,
			Message: "request " + id.String() + " is " + string(current.Status) + ", not " + string(expected),
			Current: current,
		}
	})
	if err != nil {
		return nil, asStoreError("update request status", err)
	}
	return updated, nil
}

// asStoreError keeps workflow errors and classifies transaction failures
// as StoreUnavailable.
func asStoreError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return storeUnavailable(op, err)
}
