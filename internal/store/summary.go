package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// StringList はJSON配列のテキストとして保存される文字列のリスト。
type StringList []string

// Value はdriver.Valuerを実装する。nilは空配列として保存する。
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan はsql.Scannerを実装する。
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case nil:
		*l = StringList{}
		return nil
	default:
		return fmt.Errorf("store: StringListに変換できない型です: %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("store: StringListのデコードに失敗: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// Summary はPDFから抽出した要約のレコード。
type Summary struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"userId"`
	Content   StringList `db:"content" json:"content"`
	PDFFile   string     `db:"pdf_file" json:"pdf_file"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

const summaryColumns = `id, user_id, content, pdf_file, created_at, updated_at`

// SummaryRepository は要約の永続化を行う。
type SummaryRepository struct {
	db *sqlx.DB
}

// NewSummaryRepository はSummaryRepositoryを生成する。
func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// ListByUser は利用者の要約を新しい順に返す。
func (r *SummaryRepository) ListByUser(ctx context.Context, userID string) ([]Summary, error) {
	summaries := []Summary{}
	q := r.db.Rebind(`SELECT ` + summaryColumns + ` FROM summaries WHERE user_id = ? ORDER BY created_at DESC, id`)
	if err := r.db.SelectContext(ctx, &summaries, q, userID); err != nil {
		return nil, fmt.Errorf("store: 要約一覧の取得に失敗: %w", err)
	}
	return summaries, nil
}

// FindByID は要約をIDで取得する。
func (r *SummaryRepository) FindByID(ctx context.Context, id string) (Summary, error) {
	var s Summary
	q := r.db.Rebind(`SELECT ` + summaryColumns + ` FROM summaries WHERE id = ?`)
	err := r.db.GetContext(ctx, &s, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, fmt.Errorf("store: 要約の取得に失敗: %w", err)
	}
	return s, nil
}

// Create は要約を作成する。
func (r *SummaryRepository) Create(ctx context.Context, userID string, content []string, pdfFile string) (Summary, error) {
	ts := now()
	s := Summary{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   StringList(content),
		PDFFile:   pdfFile,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if s.Content == nil {
		s.Content = StringList{}
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO summaries (id, user_id, content, pdf_file, created_at, updated_at)
		VALUES (:id, :user_id, :content, :pdf_file, :created_at, :updated_at)`, s)
	if err != nil {
		return Summary{}, fmt.Errorf("store: 要約の作成に失敗: %w", err)
	}
	return s, nil
}

// UpdateContent は要約の本文を置き換え、更新後の値を返す。
func (r *SummaryRepository) UpdateContent(ctx context.Context, id string, content []string) (Summary, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE summaries SET content = ?, updated_at = ? WHERE id = ?`),
		StringList(content), now(), id)
	if err != nil {
		return Summary{}, fmt.Errorf("store: 要約の更新に失敗: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return Summary{}, err
	}
	return r.FindByID(ctx, id)
}

// Delete は要約を削除する。
func (r *SummaryRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM summaries WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("store: 要約の削除に失敗: %w", err)
	}
	return expectAffected(res)
}
