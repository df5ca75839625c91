package store

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"
)

// openTestDB はマイグレーション適用済みのインメモリSQLiteを開く。
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), "sqlite", ":memory:?_pragma=foreign_keys(1)", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Open()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createUser(t *testing.T, repo *UserRepository, username string) User {
	t.Helper()
	u, err := repo.Create(context.Background(), CreateUserParams{
		Username:  username,
		FirstName: "First " + username,
		LastName:  "Last " + username,
		Email:     username + "@example.com",
		Password:  "00112233445566778899aabbccddeeff:c2VjcmV0",
	})
	if err != nil {
		t.Fatalf("Create()でエラーが発生: %v", err)
	}
	return u
}
