// Package strava はStrava APIとの通信を提供する。
// OAuthトークンの交換・更新とアクティビティ一覧の取得、
// およびStravaのレコードをアクティビティに変換するマッピングを含む。
package strava

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
	"strconv"
	"time"

	"github.com/hitoshi/movemonth/internal/metrics"
	"github.com/hitoshi/movemonth/internal/model"
)

const (
	// DefaultOAuthURL はStravaのOAuthエンドポイントのベースURL。
	DefaultOAuthURL = "https://www.strava.com/oauth"
	// DefaultAPIURL はStrava APIのベースURL。
	DefaultAPIURL = "https://www.strava.com/api/v3"
	// Scope はアクティビティ読み取りに必要な認可スコープ。
	Scope = "read,activity:read_all,profile:read_all"
	// maxResponseSize はレスポンスボディの読み取り上限。
	maxResponseSize = 5 << 20
)

// ErrUnauthorized はStrava APIが401を返したことを示す。
var ErrUnauthorized = errors.New("strava: unauthorized")

// StatusError はStrava APIが2xx以外のステータスを返したことを示す。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("strava: unexpected status %d", e.StatusCode)
}

// Config はStrava APIクライアントの設定。
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	OAuthURL     string
	APIURL       string
	PerPage      int
}

// API はStravaとの通信インターフェース。
type API interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (model.StravaTokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (model.StravaTokens, error)
	ListActivities(ctx context.Context, accessToken string) ([]Activity, error)
}

// Activity はGET /athlete/activitiesの1要素のうち使用するフィールド。
type Activity struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	SportType  string    `json:"sport_type"`
	Distance   float64   `json:"distance"`    // メートル
	MovingTime int       `json:"moving_time"` // 秒
	StartDate  time.Time `json:"start_date"`
}

// tokenRequest はPOST /oauth/tokenのリクエストボディ。
type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	GrantType    string `json:"grant_type"`
}

// tokenResponse はPOST /oauth/tokenのレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Athlete      *struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
}

// Client はStrava APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
// URLが空の場合はStravaの本番エンドポイントを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config, collector metrics.MetricsCollector) *Client {
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = DefaultOAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 30
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
		metrics:    collector,
	}
}

// AuthorizeURL はStravaの認可画面のURLを構築する。
func (c *Client) AuthorizeURL(state string) string {
	params := url.Values{
		"client_id":       {c.cfg.ClientID},
		"redirect_uri":    {c.cfg.RedirectURL},
		"response_type":   {"code"},
		"approval_prompt": {"force"},
		"scope":           {Scope},
		"state":           {state},
	}
	return c.cfg.OAuthURL + "/authorize?" + params.Encode()
}

// ExchangeCode は認可コードをトークンに交換する。
func (c *Client) ExchangeCode(ctx context.Context, code string) (model.StravaTokens, error) {
	return c.requestToken(ctx, tokenRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Code:         code,
		GrantType:    "authorization_code",
	})
}

// RefreshToken はリフレッシュトークンで新しいアクセストークンを取得する。
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (model.StravaTokens, error) {
	return c.requestToken(ctx, tokenRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RefreshToken: refreshToken,
		GrantType:    "refresh_token",
	})
}

func (c *Client) requestToken(ctx context.Context, body tokenRequest) (model.StravaTokens, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return model.StravaTokens{}, fmt.Errorf("トークンリクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthURL+"/token", bytes.NewReader(payload))
	if err != nil {
		return model.StravaTokens{}, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var tr tokenResponse
	if err := c.do(req, &tr); err != nil {
		c.logger.Warn("Stravaトークンエンドポイントの呼び出しに失敗しました",
			slog.String("grant_type", body.GrantType),
			slog.String("error", err.Error()),
		)
		return model.StravaTokens{}, err
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" || tr.ExpiresAt == 0 {
		return model.StravaTokens{}, fmt.Errorf("トークンレスポンスに必須項目がありません")
	}

	tokens := model.StravaTokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Unix(tr.ExpiresAt, 0).UTC(),
	}
	if tr.Athlete != nil {
		tokens.AthleteID = tr.Athlete.ID
	}
	return tokens, nil
}

// ListActivities は認証ユーザーの直近のアクティビティを1ページ分取得する。
// 401の場合はErrUnauthorizedを返す。
func (c *Client) ListActivities(ctx context.Context, accessToken string) ([]Activity, error) {
	reqURL := c.cfg.APIURL + "/athlete/activities?per_page=" + strconv.Itoa(c.cfg.PerPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	var activities []Activity
	if err := c.do(req, &activities); err != nil {
		c.logger.Warn("Stravaアクティビティの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if activities == nil {
		activities = []Activity{}
	}
	return activities, nil
}

// do はリクエストを送信し、2xxの場合にJSONボディをoutにデコードする。
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Strava APIへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.RecordUpstreamStatus(resp.StatusCode)
	c.logger.Debug("Strava APIのレスポンスを受信しました",
		slog.String("path", req.URL.Path),
		slog.Int("http_status", resp.StatusCode),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ API = (*Client)(nil)
