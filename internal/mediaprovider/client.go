// Package mediaprovider реализует клиент внешнего файлового хранилища.
// Запросы подписываются по схеме провайдера: sha1 от отсортированных
// параметров и секрета.
package mediaprovider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/subscription-reconciler/internal/config"
)

// Client клиент REST API файлового хранилища.
type Client struct {
	cloudName  string
	apiKey     string
	apiSecret  string
	apiURL     string
	httpClient *http.Client
}

// UploadResult ответ провайдера на загрузку файла.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
}

// NewClient создаёт новый клиент файлового хранилища.
func NewClient(cfg config.Media) *Client {
	return &Client{
		cloudName:  cfg.CloudName,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		apiURL:     "https://api.cloudinary.com/v1_1",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// sign подписывает параметры запроса: ключи сортируются, конкатенируются
// в query-строку и хэшируются вместе с секретом. Содержимое file в строку
// подписи по контракту провайдера не входит.
func (c *Client) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "file" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}

func (c *Client) post(ctx context.Context, path string, params url.Values, out any) error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	params.Set("timestamp", timestamp)
	signature := c.sign(params)
	params.Set("api_key", c.apiKey)
	params.Set("signature", signature)

	endpoint := fmt.Sprintf("%s/%s%s", c.apiURL, c.cloudName, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Upload загружает файл по внешнему URL или data-URI и возвращает
// public_id и постоянную ссылку.
func (c *Client) Upload(ctx context.Context, file, folder string) (*UploadResult, error) {
	const op = "mediaprovider.Upload"
	params := url.Values{}
	params.Set("file", file)
	if folder != "" {
		params.Set("folder", folder)
	}

	var result UploadResult
	if err := c.post(ctx, "/image/upload", params, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// Destroy удаляет файл по public_id.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	const op = "mediaprovider.Destroy"
	params := url.Values{}
	params.Set("public_id", publicID)
	if err := c.post(ctx, "/image/destroy", params, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
