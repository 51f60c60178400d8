package redis

import (
	"testing"

	"go.uber.org/zap"

	"orderbook-dashboard/internal/config"
)

func TestChannel(t *testing.T) {
	if got := Channel("orderbook", "ETHUSDT"); got != "orderbook_ETHUSDT_state" {
		t.Errorf("Channel=%q, want orderbook_ETHUSDT_state", got)
	}
}

func TestNewPublisher_Unreachable(t *testing.T) {
	cfg := &config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1", ChannelPrefix: "orderbook"}
	if _, err := NewPublisher(cfg, nil, zap.NewNop()); err == nil {
		t.Fatal("无法连接时应返回错误")
	}
}
