package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voltlog/voltlog/internal/syncer"
)

// Client 同步后端的 HTTP 客户端，实现 syncer.RemoteStore
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ syncer.RemoteStore = (*Client)(nil)

// NewClient 创建远端客户端
func NewClient(projectURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(projectURL, "/"),
		apiKey:  apiKey,
	}
}

// idsRequest 批量删除请求体
type idsRequest struct {
	IDs []string `json:"ids"`
}

// rowsRequest 批量 upsert 请求体
type rowsRequest[T any] struct {
	Rows []T `json:"rows"`
}

// dataResponse 通用响应结构
type dataResponse[T any] struct {
	Data []T `json:"data"`
}

// DeleteRecords 按 id 批量删除充电记录
func (c *Client) DeleteRecords(ctx context.Context, ids []string) error {
	return c.post(ctx, "/api/sync/records/delete", idsRequest{IDs: ids})
}

// DeleteVehicles 按 id 批量删除车辆
func (c *Client) DeleteVehicles(ctx context.Context, ids []string) error {
	return c.post(ctx, "/api/sync/vehicles/delete", idsRequest{IDs: ids})
}

// VehicleVersions 拉取所有远端车辆的 (车牌, 版本) 对
func (c *Client) VehicleVersions(ctx context.Context) ([]syncer.VehicleVersion, error) {
	return get[syncer.VehicleVersion](c, ctx, "/api/sync/vehicles/versions")
}

// RecordVersions 拉取所有远端记录的 (id, 版本) 对
func (c *Client) RecordVersions(ctx context.Context) ([]syncer.RecordVersion, error) {
	return get[syncer.RecordVersion](c, ctx, "/api/sync/records/versions")
}

// UpsertVehicles 以 license_plate 为冲突键批量写入车辆
func (c *Client) UpsertVehicles(ctx context.Context, rows []syncer.VehicleRow) error {
	return c.post(ctx, "/api/sync/vehicles/upsert", rowsRequest[syncer.VehicleRow]{Rows: rows})
}

// UpsertRecords 以 id 为冲突键批量写入充电记录
func (c *Client) UpsertRecords(ctx context.Context, rows []syncer.RecordRow) error {
	return c.post(ctx, "/api/sync/records/upsert", rowsRequest[syncer.RecordRow]{Rows: rows})
}

// FetchVehicles 全量拉取远端车辆
func (c *Client) FetchVehicles(ctx context.Context) ([]syncer.VehicleRow, error) {
	return get[syncer.VehicleRow](c, ctx, "/api/sync/vehicles")
}

// FetchRecords 全量拉取远端充电记录
func (c *Client) FetchRecords(ctx context.Context) ([]syncer.RecordRow, error) {
	return get[syncer.RecordRow](c, ctx, "/api/sync/records")
}

// doRequest 执行带认证的请求
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed: status=%d body=%s", path, resp.StatusCode, string(body))
	}
	return nil
}

func get[T any](c *Client, ctx context.Context, path string) ([]T, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s failed: status=%d body=%s", path, resp.StatusCode, string(body))
	}

	var out dataResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return out.Data, nil
}
