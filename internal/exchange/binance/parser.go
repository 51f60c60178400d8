// Package binance 实现 Binance 深度消息解析。
// 字段映射: bids/asks -> DepthMessage.Bids/Asks, lastUpdateId -> LastUpdateID
package binance

import (
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"orderbook-dashboard/internal/core/model"
	"orderbook-dashboard/internal/util/fastparse"
	"orderbook-dashboard/internal/util/timeutil"
)

var (
	// ErrInvalidJSON 消息体不是合法 JSON
	ErrInvalidJSON = errors.New("消息体不是合法 JSON")
	// ErrNotObject 消息体不是 JSON 对象
	ErrNotObject = errors.New("消息体不是 JSON 对象")
)

// Parser Binance 深度消息解析器
// 无状态，可在多个 goroutine 中复用
type Parser struct{}

// NewParser 创建解析器
func NewParser() *Parser {
	return &Parser{}
}

// Parse 解析一条深度消息
// 消息体非法时返回错误，调用方应整体丢弃该消息；
// 档位中的非法数字解析为 NaN，不会导致消息被拒绝；
// 缺失的 bids/asks 视为空。
// 参数 data: 原始消息字节
func (p *Parser) Parse(data []byte) (*model.DepthMessage, error) {
	arrivedAt := timeutil.NowNano()

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("解析 Binance 消息失败: %w", ErrInvalidJSON)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("解析 Binance 消息失败: %w", ErrNotObject)
	}

	bids, err := parseSide(root.Get("bids"))
	if err != nil {
		return nil, fmt.Errorf("解析 Binance bids 失败: %w", err)
	}
	asks, err := parseSide(root.Get("asks"))
	if err != nil {
		return nil, fmt.Errorf("解析 Binance asks 失败: %w", err)
	}

	return &model.DepthMessage{
		Bids:            bids,
		Asks:            asks,
		LastUpdateID:    root.Get("lastUpdateId").Int(),
		ArrivedAtUnixNs: arrivedAt,
	}, nil
}

// parseSide 解析一侧档位，支持数组与对象两种形态
// 对象形态按文档中的键顺序输出
func parseSide(side gjson.Result) ([]model.PriceLevel, error) {
	if !side.Exists() || side.Type == gjson.Null {
		return []model.PriceLevel{}, nil
	}

	switch {
	case side.IsArray():
		levels := make([]model.PriceLevel, 0, 20)
		side.ForEach(func(_, level gjson.Result) bool {
			levels = append(levels, parseLevel(level))
			return true
		})
		return levels, nil

	case side.IsObject():
		levels := make([]model.PriceLevel, 0, 20)
		side.ForEach(func(price, amount gjson.Result) bool {
			levels = append(levels, model.PriceLevel{
				Price:  fastparse.FloatOrNaN(price.String()),
				Amount: toFloat(amount),
			})
			return true
		})
		return levels, nil

	default:
		return nil, fmt.Errorf("不支持的档位类型: %s", side.Type)
	}
}

// parseLevel 解析单个档位
// 支持 ["price", "amount"] 与 {"price": "...", "amount": "..."}；其它形态得到 NaN 档位
func parseLevel(level gjson.Result) model.PriceLevel {
	switch {
	case level.IsArray():
		elems := level.Array()
		l := model.PriceLevel{Price: math.NaN(), Amount: math.NaN()}
		if len(elems) > 0 {
			l.Price = toFloat(elems[0])
		}
		if len(elems) > 1 {
			l.Amount = toFloat(elems[1])
		}
		return l

	case level.IsObject():
		return model.PriceLevel{
			Price:  toFloat(level.Get("price")),
			Amount: toFloat(level.Get("amount")),
		}

	default:
		return model.PriceLevel{Price: math.NaN(), Amount: math.NaN()}
	}
}

// toFloat 数字或数字字符串转浮点数，其它类型为 NaN
func toFloat(r gjson.Result) float64 {
	switch r.Type {
	case gjson.String:
		return fastparse.FloatOrNaN(r.Str)
	case gjson.Number:
		return r.Num
	default:
		return math.NaN()
	}
}
