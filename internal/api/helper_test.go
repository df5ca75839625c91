package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/summarize/internal/store"
	"github.com/nao1215/summarize/internal/summarizer"
	"github.com/nao1215/summarize/pkg/credential"
	"github.com/nao1215/summarize/pkg/metrics"
	"github.com/nao1215/summarize/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testOrigin   = "http://localhost:5173"
	testPassword = "correct horse battery staple"
)

var discardLogger = slog.New(slog.DiscardHandler)

// testHasher は並列テストでメモリを使い過ぎないよう軽いArgon2idパラメータで生成する。
var testHasher = func() *credential.Hasher {
	c, err := credential.NewHasher("test-credential-secret",
		credential.WithKDFParams(credential.KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}))
	if err != nil {
		panic(err)
	}
	return c
}()

// setupTestServer はインメモリSQLiteと要約サービスのモックでサーバーを構築する。
// ai がnilの場合、要約サービスへの呼び出しは500になる。
func setupTestServer(t *testing.T, ai http.HandlerFunc) *Server {
	t.Helper()

	db, err := store.Open(context.Background(), "sqlite", ":memory:?_pragma=foreign_keys(1)", discardLogger)
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if ai == nil {
		ai = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
	aiServer := httptest.NewServer(ai)
	t.Cleanup(aiServer.Close)

	tokens, err := token.New("test-jwt-secret")
	if err != nil {
		t.Fatalf("token.New()でエラーが発生: %v", err)
	}

	return newServer(components{
		port:           "0",
		db:             db,
		hasher:         testHasher,
		tokens:         tokens,
		summarizer:     summarizer.New(aiServer.URL),
		metrics:        metrics.New(metricsNamespace),
		logger:         discardLogger,
		accessTTL:      time.Hour,
		refreshTTL:     24 * time.Hour,
		uploadDir:      t.TempDir(),
		allowedOrigins: []string{testOrigin},
	})
}

// doJSON はJSONボディ付きのリクエストを送信する。bearerが空でなければAuthorizationヘッダーを付ける。
func doJSON(t *testing.T, s *Server, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// decodeData は {"data": ...} 形式のレスポンスから data を取り出す。
func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v (body=%s)", err, w.Body.String())
	}
	return body.Data
}

// parseBody はレスポンスボディを文字列マップとしてパースする。
func parseBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v (body=%s)", err, w.Body.String())
	}
	return body
}

// registerUser はAPI経由で利用者を登録し、発行されたトークンの組を返す。
func registerUser(t *testing.T, s *Server, username string) tokenPair {
	t.Helper()
	body := `{"username":"` + username + `","firstName":"Taro","lastName":"Yamada","email":"` +
		username + `@example.com","password":"` + testPassword + `"}`
	w := doJSON(t, s, http.MethodPost, "/auth/register", body, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("登録に失敗: status = %d, body = %s", w.Code, w.Body.String())
	}
	return decodeData[tokenPair](t, w)
}

// userIDOf はアクセストークンから利用者IDを取り出す。
func userIDOf(t *testing.T, s *Server, access string) string {
	t.Helper()
	v, err := s.tokens.Verify(access)
	if err != nil {
		t.Fatalf("Verify()でエラーが発生: %v", err)
	}
	id, ok := v.Access()
	if !ok {
		t.Fatalf("アクセストークンではありません: kind = %s", v.Kind())
	}
	return id.ID
}
