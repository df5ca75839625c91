package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// User は利用者のレコード。Password は credential パッケージの保存形式。
type User struct {
	ID        string     `db:"id"`
	Username  string     `db:"username"`
	FirstName string     `db:"first_name"`
	LastName  string     `db:"last_name"`
	Email     string     `db:"email"`
	Password  string     `db:"password"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// CreateUserParams は利用者作成時の入力。
type CreateUserParams struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// UpdateUserParams は利用者更新時の入力。空文字列のフィールドは変更しない。
type UpdateUserParams struct {
	Username  string
	FirstName string
	LastName  string
}

const userColumns = `id, username, first_name, last_name, email, password, created_at, updated_at, deleted_at`

// UserRepository は利用者の永続化を行う。
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository はUserRepositoryを生成する。
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create は利用者を作成する。ユーザー名かメールアドレスが重複する場合は ErrConflict を返す。
func (r *UserRepository) Create(ctx context.Context, p CreateUserParams) (User, error) {
	ts := now()
	u := User{
		ID:        uuid.NewString(),
		Username:  p.Username,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Password:  p.Password,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, first_name, last_name, email, password, created_at, updated_at)
		VALUES (:id, :username, :first_name, :last_name, :email, :password, :created_at, :updated_at)`, u)
	if isUniqueViolation(err) {
		return User{}, ErrConflict
	}
	if err != nil {
		return User{}, fmt.Errorf("store: 利用者の作成に失敗: %w", err)
	}
	return u, nil
}

// FindByID は削除されていない利用者をIDで取得する。
func (r *UserRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByEmail は削除されていない利用者をメールアドレスで取得する。
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByUsername は削除されていない利用者をユーザー名で取得する。
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	return r.findOne(ctx, "username", username)
}

// findOne の column は呼び出し側の定数のみを渡す。
func (r *UserRepository) findOne(ctx context.Context, column, value string) (User, error) {
	var u User
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ? AND deleted_at IS NULL`)
	err := r.db.GetContext(ctx, &u, q, value)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("store: 利用者の取得に失敗: %w", err)
	}
	return u, nil
}

// Update は削除されていない利用者の表示情報を更新し、更新後の値を返す。
func (r *UserRepository) Update(ctx context.Context, id string, p UpdateUserParams) (User, error) {
	sets := []string{"updated_at = ?"}
	args := []any{now()}
	for _, f := range []struct{ column, value string }{
		{"username", p.Username},
		{"first_name", p.FirstName},
		{"last_name", p.LastName},
	} {
		if f.value != "" {
			sets = append(sets, f.column+" = ?")
			args = append(args, f.value)
		}
	}
	args = append(args, id)

	q := r.db.Rebind(`UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND deleted_at IS NULL`)
	res, err := r.db.ExecContext(ctx, q, args...)
	if isUniqueViolation(err) {
		return User{}, ErrConflict
	}
	if err != nil {
		return User{}, fmt.Errorf("store: 利用者の更新に失敗: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return User{}, err
	}
	return r.FindByID(ctx, id)
}

// SoftDelete は利用者を論理削除する。以降の FindBy* では取得できなくなる。
func (r *UserRepository) SoftDelete(ctx context.Context, id string) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`),
		ts, ts, id)
	if err != nil {
		return fmt.Errorf("store: 利用者の削除に失敗: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: 更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
