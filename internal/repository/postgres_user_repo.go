package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/taskdeck/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, external_id, email, first_name, last_name, username, image_ref, created_at, updated_at`

// scanUser は1行をmodel.Userへ読み取る。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var imageRef string
	err := row.Scan(
		&user.ID, &user.ExternalID, &user.Email,
		&user.FirstName, &user.LastName, &user.Username,
		&imageRef, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Image = model.ParseImageRef(imageRef)
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByExternalID は外部IdPの識別子でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`,
		externalID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// external_idの一意制約に違反した場合はErrDuplicateExternalIDを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, external_id, email, first_name, last_name, username, image_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.ExternalID, user.Email,
		user.FirstName, user.LastName, user.Username,
		user.Image.String(), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateExternalID
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update は指定されたフィールドのみを更新し、更新後のユーザーを返す。
// nilフィールドはCOALESCEで既存値を維持する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) Update(ctx context.Context, id string, patch UserPatch) (*model.User, error) {
	var imageRef *string
	if patch.Image != nil {
		v := patch.Image.String()
		imageRef = &v
	}

	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET
		    email      = COALESCE($2, email),
		    first_name = COALESCE($3, first_name),
		    last_name  = COALESCE($4, last_name),
		    username   = COALESCE($5, username),
		    image_ref  = COALESCE($6, image_ref),
		    updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, patch.Email, patch.FirstName, patch.LastName, patch.Username, imageRef,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// DeleteByID は指定IDのユーザーを削除し、削除したユーザーを返す。
// 所有タスクはON DELETE CASCADEで削除される。見つからない場合はnilを返す。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`DELETE FROM users WHERE id = $1 RETURNING `+userColumns,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
