// Package fastparse 提供行情字段的字符串解析函数。
// 交易所推送的价格和数量均为字符串，热路径上统一走 strconv。
package fastparse

import (
	"math"
	"strconv"
	"strings"
)

// FloatOrNaN 解析浮点数，失败时返回 NaN
// 订单簿字段采用乐观解析：非法数字不拒绝整条消息，而是以 NaN 继续向下游传递。
// 参数 s: 待解析的字符串（允许前后空白）
func FloatOrNaN(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// IsFinite 判断浮点数是否为有限值（非 NaN、非 ±Inf）
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
