package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/summarize/pkg/middleware"
	"github.com/nao1215/summarize/pkg/token"
)

func TestHandleRegister(t *testing.T) {
	t.Parallel()

	t.Run("登録に成功すると201とトークンの組を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)

		pair := registerUser(t, s, "alice")

		v, err := s.tokens.Verify(pair.AccessToken)
		if err != nil {
			t.Fatalf("Verify(access)でエラーが発生: %v", err)
		}
		id, ok := v.Access()
		if !ok {
			t.Fatalf("kind = %s, want %s", v.Kind(), token.KindAccess)
		}
		want := token.Identity{
			ID:        id.ID,
			Email:     "alice@example.com",
			Username:  "alice",
			FirstName: "Taro",
			LastName:  "Yamada",
		}
		if diff := cmp.Diff(want, id); diff != "" {
			t.Errorf("アクセストークンの利用者情報が異なる (-want +got):\n%s", diff)
		}

		rv, err := s.tokens.Verify(pair.RefreshToken)
		if err != nil {
			t.Fatalf("Verify(refresh)でエラーが発生: %v", err)
		}
		rid, ok := rv.Refresh()
		if !ok {
			t.Fatalf("kind = %s, want %s", rv.Kind(), token.KindRefresh)
		}
		if diff := cmp.Diff(token.Identity{ID: id.ID, Email: "alice@example.com"}, rid); diff != "" {
			t.Errorf("リフレッシュトークンの利用者情報が異なる (-want +got):\n%s", diff)
		}
	})

	t.Run("パスワードは平文で保存されないこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)
		pair := registerUser(t, s, "alice")

		u, err := s.users.FindByID(context.Background(), userIDOf(t, s, pair.AccessToken))
		if err != nil {
			t.Fatalf("FindByID()でエラーが発生: %v", err)
		}
		if strings.Contains(u.Password, testPassword) {
			t.Errorf("保存値に平文のパスワードが含まれている: %q", u.Password)
		}
		if !s.hasher.Verify(testPassword, u.Password) {
			t.Error("保存値が元のパスワードと照合できない")
		}
	})

	t.Run("ユーザー名かメールアドレスが重複する場合は409を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)
		registerUser(t, s, "alice")

		tests := []struct {
			name string
			body string
		}{
			{
				name: "ユーザー名の重複",
				body: `{"username":"alice","firstName":"A","lastName":"B","email":"other@example.com","password":"p"}`,
			},
			{
				name: "メールアドレスの重複",
				body: `{"username":"other","firstName":"A","lastName":"B","email":"alice@example.com","password":"p"}`,
			},
		}
		for _, tt := range tests {
			w := doJSON(t, s, http.MethodPost, "/auth/register", tt.body, "")
			if w.Code != http.StatusConflict {
				t.Errorf("%s: ステータスコード = %d, want %d", tt.name, w.Code, http.StatusConflict)
			}
		}
	})

	t.Run("スキーマに合わないボディは400を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)

		tests := []struct {
			name string
			body string
		}{
			{name: "必須フィールドの欠落", body: `{"username":"alice","firstName":"A","lastName":"B","email":"a@example.com"}`},
			{name: "未定義のフィールド", body: `{"username":"alice","firstName":"A","lastName":"B","email":"a@example.com","password":"p","admin":true}`},
			{name: "型の誤り", body: `{"username":1,"firstName":"A","lastName":"B","email":"a@example.com","password":"p"}`},
			{name: "空のボディ", body: ``},
			{name: "大文字小文字の異なるキー", body: `{"USERNAME":"alice","firstName":"A","lastName":"B","EMAIL":"a@example.com","Password":"p"}`},
			{name: "大文字小文字だけ異なるキーの重複", body: `{"username":"alice","firstName":"A","lastName":"B","email":"a@example.com","Email":"evil@example.com","password":"p"}`},
			{name: "同じキーの重複", body: `{"username":"alice","username":"mallory","firstName":"A","lastName":"B","email":"a@example.com","password":"p"}`},
		}
		for _, tt := range tests {
			w := doJSON(t, s, http.MethodPost, "/auth/register", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: ステータスコード = %d, want %d", tt.name, w.Code, http.StatusBadRequest)
			}
		}
	})
}

func TestHandleLogin(t *testing.T) {
	t.Parallel()

	t.Run("メールアドレスかユーザー名でログインできること", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)
		registered := registerUser(t, s, "alice")
		wantID := userIDOf(t, s, registered.AccessToken)

		bodies := []string{
			`{"email":"alice@example.com","password":"` + testPassword + `"}`,
			`{"username":"alice","password":"` + testPassword + `"}`,
		}
		for _, body := range bodies {
			w := doJSON(t, s, http.MethodPost, "/auth/login", body, "")
			if w.Code != http.StatusOK {
				t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
			}
			pair := decodeData[tokenPair](t, w)
			if got := userIDOf(t, s, pair.AccessToken); got != wantID {
				t.Errorf("user id = %q, want %q", got, wantID)
			}
			if pair.RefreshToken == "" {
				t.Error("リフレッシュトークンが空")
			}
		}
	})

	t.Run("利用者の不在とパスワードの誤りは同じ404を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)
		registerUser(t, s, "alice")

		bodies := []string{
			`{"email":"alice@example.com","password":"wrong"}`,
			`{"email":"nobody@example.com","password":"` + testPassword + `"}`,
			`{"username":"nobody","password":"` + testPassword + `"}`,
		}
		for _, body := range bodies {
			w := doJSON(t, s, http.MethodPost, "/auth/login", body, "")
			if w.Code != http.StatusNotFound {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
			}
			if got := parseBody(t, w)["error"]; got != errInvalidLogin {
				t.Errorf("error = %q, want %q", got, errInvalidLogin)
			}
		}
	})

	t.Run("削除済みの利用者はログインできないこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)
		pair := registerUser(t, s, "alice")
		if w := doJSON(t, s, http.MethodDelete, "/users/me", "", pair.AccessToken); w.Code != http.StatusNoContent {
			t.Fatalf("削除に失敗: status = %d", w.Code)
		}

		w := doJSON(t, s, http.MethodPost, "/auth/login", `{"username":"alice","password":"`+testPassword+`"}`, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("キーの大文字小文字が異なるか重複する場合は400を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)
		registerUser(t, s, "alice")

		bodies := []string{
			`{"EMAIL":"alice@example.com","Password":"` + testPassword + `"}`,
			`{"email":"alice@example.com","Email":"evil@example.com","password":"` + testPassword + `"}`,
			`{"email":"evil@example.com","email":"alice@example.com","password":"` + testPassword + `"}`,
		}
		for _, body := range bodies {
			w := doJSON(t, s, http.MethodPost, "/auth/login", body, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("body=%s: ステータスコード = %d, want %d", body, w.Code, http.StatusBadRequest)
			}
		}
	})

	t.Run("usernameとemailが両方ない場合は400を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)

		w := doJSON(t, s, http.MethodPost, "/auth/login", `{"password":"p"}`, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestHandleRefresh(t *testing.T) {
	t.Parallel()

	t.Run("リフレッシュトークンで新しいトークンの組を取得できること", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)
		registered := registerUser(t, s, "alice")

		w := doJSON(t, s, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+registered.RefreshToken+`"}`, "")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		pair := decodeData[tokenPair](t, w)
		if got, want := userIDOf(t, s, pair.AccessToken), userIDOf(t, s, registered.AccessToken); got != want {
			t.Errorf("user id = %q, want %q", got, want)
		}
		if w := doJSON(t, s, http.MethodGet, "/users/me", "", pair.AccessToken); w.Code != http.StatusOK {
			t.Errorf("再発行したアクセストークンで認証できない: status = %d", w.Code)
		}
	})

	t.Run("リフレッシュできない場合は401と理由を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, nil)
		registered := registerUser(t, s, "alice")
		id := userIDOf(t, s, registered.AccessToken)

		expired, err := s.tokens.Issue(token.Identity{ID: id, Email: "alice@example.com"}, token.KindRefresh, -time.Minute)
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		unknown, err := s.tokens.Issue(token.Identity{ID: "unknown"}, token.KindRefresh, 0)
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		tests := []struct {
			name       string
			token      string
			wantReason string
		}{
			{name: "アクセストークン", token: registered.AccessToken, wantReason: middleware.ReasonInvalidToken},
			{name: "期限切れ", token: expired, wantReason: middleware.ReasonTokenExpired},
			{name: "存在しない利用者", token: unknown, wantReason: middleware.ReasonInvalidToken},
			{name: "不正な文字列", token: "not-a-token", wantReason: middleware.ReasonInvalidToken},
		}
		for _, tt := range tests {
			w := doJSON(t, s, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+tt.token+`"}`, "")
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s: ステータスコード = %d, want %d", tt.name, w.Code, http.StatusUnauthorized)
				continue
			}
			if got := parseBody(t, w)["reason"]; got != tt.wantReason {
				t.Errorf("%s: reason = %q, want %q", tt.name, got, tt.wantReason)
			}
		}
	})
}
