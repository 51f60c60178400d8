// Package metadata 负责维护可订阅的交易对目录，并可选地通过交易所元数据校验。
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher 元数据获取器接口
type Fetcher interface {
	// FetchSymbols 获取现货交易对列表
	FetchSymbols(ctx context.Context, url string) ([]SpotSymbol, error)
}

// HTTPFetcher HTTP 元数据获取器
type HTTPFetcher struct {
	// client HTTP 客户端
	client *http.Client
}

// NewHTTPFetcher 创建 HTTP 元数据获取器
// 参数 timeoutMs: HTTP 请求超时时间（毫秒）
func NewHTTPFetcher(timeoutMs int) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
	}
}

// FetchSymbols 获取 Binance 现货交易对列表
// 参数 ctx: 上下文，用于取消请求
// 参数 url: exchangeInfo 地址
func (f *HTTPFetcher) FetchSymbols(ctx context.Context, url string) ([]SpotSymbol, error) {
	body, err := f.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("请求 Binance 元数据失败: %w", err)
	}

	var resp ExchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析 Binance 元数据失败: %w", err)
	}

	return resp.Symbols, nil
}

// doRequest 执行 HTTP GET 请求
// 参数 ctx: 上下文
// 参数 url: 请求地址
// 返回: 响应体字节数组
func (f *HTTPFetcher) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("User-Agent", "orderbook-dashboard/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	return body, nil
}
