package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/summarize/pkg/middleware"
)

// DefaultTimeout はWithTimeoutを指定しない場合のタイムアウト。
const DefaultTimeout = 30 * time.Second

// maxErrorBody はStatusErrorに保持する応答ボディの上限。
const maxErrorBody = 4 << 10

// Client は外部サービス用のHTTPクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithTimeout はリクエスト全体のタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient は内部で使用する *http.Client を差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New はHTTPクライアントを生成する。
// baseURLには接続先のベースURL（例: "http://ai:8000"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError は2xx以外の応答を表す。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: HTTPエラー: status=%d, body=%s", e.StatusCode, e.Body)
}

// ClientError は応答が4xxかを返す。
func (e *StatusError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httpclient: リクエストボディのシリアライズに失敗: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(jsonBody), result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, result)
}

// PostMultipart は1つのファイルをmultipart/form-dataでPOSTする。
// ファイルはパイプ経由で送るため、全体をメモリに読み込まない。
func (c *Client) PostMultipart(ctx context.Context, path, field, filename string, file io.Reader, result any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(field, filename)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	err := c.do(ctx, http.MethodPost, path, mw.FormDataContentType(), pr, result)
	// 送信が途中で失敗した場合に書き込み側のgoroutineを終わらせる
	_ = pr.CloseWithError(io.ErrClosedPipe)
	return err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("httpclient: HTTPリクエストの作成に失敗: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderRequestID, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("httpclient: レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}
