// Package summarizer はPDF要約サービスのHTTPクライアント。
//
// 要約サービスはアップロードされたPDFに対して非同期の抽出処理を開始し、
// 発行したリクエストIDで進捗をポーリングさせる。
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/summarize/pkg/httpclient"
)

// ErrNoRequestID は抽出開始の応答にリクエストIDが含まれない場合に返される。
var ErrNoRequestID = errors.New("summarizer: 抽出開始の応答にリクエストIDがありません")

const (
	startPath = "/summarize"
	pollPath  = "/poll_summarize"
	fileField = "file"
)

// Extraction は開始した抽出処理の識別情報。
type Extraction struct {
	RequestID string `json:"requestId"`
}

// Client は要約サービスのクライアント。
type Client struct {
	http *httpclient.Client
}

// New は要約サービスのベースURLからクライアントを生成する。
func New(baseURL string, opts ...httpclient.Option) *Client {
	return &Client{http: httpclient.New(baseURL, opts...)}
}

// StartExtraction はPDFを送信して抽出処理を開始する。
func (c *Client) StartExtraction(ctx context.Context, filename string, pdf io.Reader) (Extraction, error) {
	var resp struct {
		Data Extraction `json:"data"`
	}
	if err := c.http.PostMultipart(ctx, startPath, fileField, filename, pdf, &resp); err != nil {
		return Extraction{}, fmt.Errorf("summarizer: 抽出の開始に失敗: %w", err)
	}
	if resp.Data.RequestID == "" {
		return Extraction{}, ErrNoRequestID
	}
	return resp.Data, nil
}

// PollExtraction は抽出処理の状態を問い合わせ、応答の "data" をそのまま返す。
func (c *Client) PollExtraction(ctx context.Context, requestID string) (json.RawMessage, error) {
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	req := struct {
		RequestID string `json:"requestId"`
	}{RequestID: requestID}
	if err := c.http.PostJSON(ctx, pollPath, req, &resp); err != nil {
		return nil, fmt.Errorf("summarizer: 抽出状態の取得に失敗: %w", err)
	}
	if len(resp.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return resp.Data, nil
}
