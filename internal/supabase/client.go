// Package supabase はホスティング型認証・ストレージ・データAPI（Supabase互換）のRESTクライアントを提供する。
// /auth/v1, /storage/v1, /rest/v1 の必要なエンドポイントのみを扱う。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pawrest/pawrest/internal/model"
)

// maxResponseSize はレスポンスボディの読み取り上限。
const maxResponseSize = 1 << 20

// Error はプロバイダーが返したエラーを表す。Messageは利用者にそのまま表示できる文言。
type Error struct {
	Status  int
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Message)
}

// IsUnauthorized はトークンが拒否されたエラーかを判定する。
func IsUnauthorized(err error) bool {
	var perr *Error
	if !errors.As(err, &perr) {
		return false
	}
	return perr.Status == http.StatusUnauthorized || perr.Status == http.StatusForbidden
}

// User はプロバイダーのユーザーオブジェクト。
type User struct {
	ID           string                `json:"id"`
	Email        string                `json:"email"`
	UserMetadata model.AccountMetadata `json:"user_metadata"`
}

// Account はUserをドメインのAccountに変換する。
func (u *User) Account() *model.Account {
	if u == nil {
		return nil
	}
	return &model.Account{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}
}

// TokenResponse はトークン発行エンドポイントのレスポンス。
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// SignUpResponse はサインアップのレスポンス。
// メール確認が有効な場合はユーザーオブジェクトのみが返り、無効な場合はセッションが返る。
type SignUpResponse struct {
	User    *User
	Session *TokenResponse
}

// Client はプロバイダーのRESTクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	anonKey    string
	observe    func(operation string, d time.Duration)
}

// NewClient はClientを生成する。baseURLは末尾スラッシュなしのプロジェクトURL。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, anonKey string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
	}
}

// SetLatencyObserver は各API呼び出しの所要時間を受け取る関数を設定する。
func (c *Client) SetLatencyObserver(observe func(operation string, d time.Duration)) {
	c.observe = observe
}

// request は1回のAPI呼び出しの内容。
type request struct {
	operation   string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	accessToken string
	header      http.Header
}

// SignUp はメールアドレスとパスワードでアカウントを作成する。
// metadataはuser_metadataとして保存される。redirectToは確認メールのリンク先。
func (c *Client) SignUp(ctx context.Context, email, password string, metadata model.AccountMetadata, redirectTo string) (*SignUpResponse, error) {
	payload := map[string]interface{}{
		"email":    email,
		"password": password,
		"data":     metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signup request: %w", err)
	}

	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	var raw struct {
		TokenResponse
		ID           string                `json:"id"`
		Email        string                `json:"email"`
		UserMetadata model.AccountMetadata `json:"user_metadata"`
	}
	err = c.do(ctx, request{
		operation:   "signup",
		method:      http.MethodPost,
		path:        "/auth/v1/signup",
		query:       query,
		body:        bytes.NewReader(body),
		contentType: "application/json",
	}, &raw)
	if err != nil {
		return nil, err
	}

	resp := &SignUpResponse{}
	if raw.AccessToken != "" {
		session := raw.TokenResponse
		resp.Session = &session
		resp.User = raw.User
	} else if raw.User != nil {
		resp.User = raw.User
	} else {
		resp.User = &User{ID: raw.ID, Email: raw.Email, UserMetadata: raw.UserMetadata}
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, &Error{Status: http.StatusBadGateway, Message: "Sign up did not return an account."}
	}
	return resp, nil
}

// SignInWithPassword はパスワード認証でセッションを発行する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*TokenResponse, error) {
	return c.token(ctx, "password", map[string]string{"email": email, "password": password})
}

// RefreshSession はリフレッシュトークンで新しいセッションを発行する。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) token(ctx context.Context, grantType string, payload map[string]string) (*TokenResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	var resp TokenResponse
	err = c.do(ctx, request{
		operation:   "token",
		method:      http.MethodPost,
		path:        "/auth/v1/token",
		query:       url.Values{"grant_type": {grantType}},
		body:        bytes.NewReader(body),
		contentType: "application/json",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &Error{Status: http.StatusBadGateway, Message: "The authentication service returned no session."}
	}
	return &resp, nil
}

// GetUser はアクセストークンに対応するユーザーを取得する。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	err := c.do(ctx, request{
		operation:   "user",
		method:      http.MethodGet,
		path:        "/auth/v1/user",
		accessToken: accessToken,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Recover はパスワード再設定メールの送信を依頼する。
func (c *Client) Recover(ctx context.Context, email, redirectTo string) error {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return fmt.Errorf("failed to encode recover request: %w", err)
	}

	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return c.do(ctx, request{
		operation:   "recover",
		method:      http.MethodPost,
		path:        "/auth/v1/recover",
		query:       query,
		body:        bytes.NewReader(body),
		contentType: "application/json",
	}, nil)
}

// Logout はアクセストークンのセッションをプロバイダー側で失効させる。
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		operation:   "logout",
		method:      http.MethodPost,
		path:        "/auth/v1/logout",
		accessToken: accessToken,
	}, nil)
}

// UploadObject はバケット内のパスにファイルを保存する。既存オブジェクトは上書きしない。
func (c *Client) UploadObject(ctx context.Context, bucket, objectPath string, upload *model.Upload, accessToken string) error {
	if upload.Empty() {
		return fmt.Errorf("upload for %s is empty", objectPath)
	}

	header := http.Header{}
	header.Set("Cache-Control", "max-age=3600")
	header.Set("x-upsert", "false")

	return c.do(ctx, request{
		operation:   "storage_upload",
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapeObjectPath(objectPath),
		body:        bytes.NewReader(upload.Data),
		contentType: upload.ContentType,
		accessToken: accessToken,
		header:      header,
	}, nil)
}

// Insert はテーブルに1行を追加する。レスポンスボディは要求しない。
func (c *Client) Insert(ctx context.Context, table string, row interface{}, accessToken string) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode %s row: %w", table, err)
	}

	header := http.Header{}
	header.Set("Prefer", "return=minimal")

	return c.do(ctx, request{
		operation:   "rest_insert",
		method:      http.MethodPost,
		path:        "/rest/v1/" + url.PathEscape(table),
		body:        bytes.NewReader(body),
		contentType: "application/json",
		accessToken: accessToken,
		header:      header,
	}, nil)
}

// Select はテーブルを検索し、結果のJSON配列をoutにデコードする。
// queryにはPostgRESTのフィルタ（user_id=eq.xxx, select=role など）を渡す。
func (c *Client) Select(ctx context.Context, table string, query url.Values, accessToken string, out interface{}) error {
	return c.do(ctx, request{
		operation:   "rest_select",
		method:      http.MethodGet,
		path:        "/rest/v1/" + url.PathEscape(table),
		query:       query,
		accessToken: accessToken,
	}, out)
}

// do はリクエストを送信し、成功時にレスポンスをoutへデコードする。
// 2xx以外はプロバイダーのメッセージを持つ*Errorに変換する。
func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	reqURL := c.baseURL + r.path
	if len(r.query) > 0 {
		reqURL += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, r.body)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	for key, values := range r.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("apikey", c.anonKey)
	bearer := r.accessToken
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.observe != nil {
		c.observe(r.operation, time.Since(start))
	}
	if err != nil {
		c.logger.Error("provider request failed",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("provider request %s %s failed: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &Error{Status: resp.StatusCode, Message: errorMessage(body, resp.StatusCode)}
		c.logger.Error("provider returned error status",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", perr.Message),
		)
		return perr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode provider response for %s: %w", r.path, err)
	}
	return nil
}

// errorMessage はエラーレスポンスから表示用メッセージを取り出す。
// GoTrue, Storage, PostgREST でキー名が異なるため順に探す。
func errorMessage(body []byte, status int) string {
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"msg", "message", "error_description", "error"} {
			if s, ok := fields[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "The authentication service is unavailable."
}

// escapeObjectPath はオブジェクトパスをセグメントごとにエスケープする。
func escapeObjectPath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
