package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"orderbook-dashboard/internal/core/model"
	"orderbook-dashboard/internal/core/store"
	"orderbook-dashboard/internal/exchange/binance"
	"orderbook-dashboard/internal/metadata"
	"orderbook-dashboard/internal/util/backoff"
)

type fakeStream struct {
	pair       model.TradingPair
	ch         chan *model.DepthMessage
	connectErr error
	connects   int32
	closed     int32
}

func (s *fakeStream) Connect(context.Context) error {
	atomic.AddInt32(&s.connects, 1)
	return s.connectErr
}

func (s *fakeStream) Run(ctx context.Context) { <-ctx.Done() }

func (s *fakeStream) Messages() <-chan *model.DepthMessage { return s.ch }

func (s *fakeStream) Metrics() binance.ConnectionMetrics {
	return binance.ConnectionMetrics{Connected: atomic.LoadInt32(&s.closed) == 0}
}

func (s *fakeStream) Close() error {
	atomic.StoreInt32(&s.closed, 1)
	return nil
}

func (s *fakeStream) isClosed() bool { return atomic.LoadInt32(&s.closed) == 1 }

type fakeFactory struct {
	mu         sync.Mutex
	streams    []*fakeStream
	connectErr error
}

func (f *fakeFactory) New(pair model.TradingPair) Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeStream{pair: pair, ch: make(chan *model.DepthMessage, 8), connectErr: f.connectErr}
	f.streams = append(f.streams, s)
	return s
}

func (f *fakeFactory) stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.streams) {
		return nil
	}
	return f.streams[i]
}

type recordingSink struct {
	mu     sync.Mutex
	states []*store.State
}

func (r *recordingSink) Publish(st *store.State) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *recordingSink) all() []*store.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*store.State, len(r.states))
	copy(out, r.states)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("等待条件超时")
}

func depthMsg(bid, ask float64) *model.DepthMessage {
	return &model.DepthMessage{
		Bids:            []model.PriceLevel{{Price: bid, Amount: 2}},
		Asks:            []model.PriceLevel{{Price: ask, Amount: 1}},
		ArrivedAtUnixNs: time.Now().UnixNano(),
	}
}

func newTestManager(t *testing.T, f *fakeFactory, sinks ...Sink) (*Manager, *store.Store) {
	t.Helper()
	catalog, err := metadata.NewCatalog(model.DefaultPairs(), "")
	if err != nil {
		t.Fatalf("NewCatalog 失败: %v", err)
	}
	st := store.New(catalog.Default())
	m := NewManager(f.New, catalog, st, Options{
		DialAttempts: 2,
		Backoff:      backoff.New(time.Millisecond, time.Millisecond, 0),
	}, nil, zap.NewNop(), sinks...)
	return m, st
}

func startManager(t *testing.T, m *Manager, pair model.TradingPair) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx, pair)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestManager_AppliesMessages(t *testing.T) {
	f := &fakeFactory{}
	sink := &recordingSink{}
	m, st := newTestManager(t, f, sink)
	startManager(t, m, model.DefaultPairs()[0])

	waitFor(t, func() bool { return f.stream(0) != nil && m.Stats().Active })
	f.stream(0).ch <- depthMsg(100, 100.5)

	waitFor(t, func() bool { return st.Load().Ready })

	got := st.Load()
	if got.Pair.Symbol != "BTCUSDT" {
		t.Errorf("Pair=%s, want BTCUSDT", got.Pair.Symbol)
	}
	if spread, ok := got.Spread(); !ok || spread != 0.5 {
		t.Errorf("Spread()=%v,%v, want 0.5,true", spread, ok)
	}
	if got.Imbalance != 1.0/3.0 {
		t.Errorf("Imbalance=%v, want 1/3", got.Imbalance)
	}

	states := sink.all()
	if len(states) < 2 || states[0].Ready || !states[len(states)-1].Ready {
		t.Errorf("sink 应先收到未就绪的初始状态，再收到就绪状态")
	}
}

func TestManager_SwitchResetsBeforeFirstMessage(t *testing.T) {
	f := &fakeFactory{}
	m, st := newTestManager(t, f)
	startManager(t, m, model.DefaultPairs()[0])

	waitFor(t, func() bool { return f.stream(0) != nil && m.Stats().Active })
	old := f.stream(0)
	old.ch <- depthMsg(100, 100.5)
	waitFor(t, func() bool { return st.Load().Messages == 1 })

	pair, err := m.Switch(context.Background(), "eth-usdt")
	if err != nil {
		t.Fatalf("Switch 失败: %v", err)
	}
	if pair.Symbol != "ETHUSDT" {
		t.Fatalf("pair=%s, want ETHUSDT", pair.Symbol)
	}
	if !old.isClosed() {
		t.Error("切换后旧订阅应被关闭")
	}

	got := st.Load()
	if got.Pair.Symbol != "ETHUSDT" || got.Ready || got.History.Len() != 0 || !got.Snapshot.IsEmpty() || got.Imbalance != 0 {
		t.Errorf("切换后状态未重置: %+v", got)
	}

	// 旧订阅的迟到消息不会被应用
	old.ch <- depthMsg(1, 2)
	time.Sleep(20 * time.Millisecond)
	if st.Load().Ready {
		t.Error("旧订阅的消息不应被应用")
	}

	f.stream(1).ch <- depthMsg(2000, 2001)
	waitFor(t, func() bool { return st.Load().Ready })
	if st.Load().BestBid != 2000 || st.Load().Messages != 1 {
		t.Errorf("新订阅状态错误: %+v", st.Load())
	}
	if m.Stats().Generation != 2 {
		t.Errorf("Generation=%d, want 2", m.Stats().Generation)
	}
}

func TestManager_UnknownPair(t *testing.T) {
	f := &fakeFactory{}
	m, _ := newTestManager(t, f)
	startManager(t, m, model.DefaultPairs()[0])

	if _, err := m.Switch(context.Background(), "DOGEUSDT"); !errors.Is(err, ErrUnknownPair) {
		t.Fatalf("err=%v, want ErrUnknownPair", err)
	}
}

func TestManager_DialFailure(t *testing.T) {
	f := &fakeFactory{connectErr: errors.New("dial refused")}
	m, st := newTestManager(t, f)
	startManager(t, m, model.DefaultPairs()[0])

	_, err := m.Switch(context.Background(), "XRPUSDT")
	if err == nil {
		t.Fatal("拨号失败时 Switch 应返回错误")
	}

	s := f.stream(1)
	if got := atomic.LoadInt32(&s.connects); got != 2 {
		t.Errorf("connects=%d, want 2", got)
	}
	if !s.isClosed() {
		t.Error("拨号失败的订阅应被关闭")
	}
	if st.Load().Pair.Symbol != "XRPUSDT" || st.Load().Ready {
		t.Errorf("状态应重置为未就绪的 XRPUSDT: %+v", st.Load())
	}
	if m.Stats().Active {
		t.Error("拨号失败后不应有活动订阅")
	}
}

func TestManager_StreamEndLeavesStateStale(t *testing.T) {
	f := &fakeFactory{}
	m, st := newTestManager(t, f)
	startManager(t, m, model.DefaultPairs()[0])

	waitFor(t, func() bool { return f.stream(0) != nil && m.Stats().Active })
	f.stream(0).ch <- depthMsg(100, 101)
	waitFor(t, func() bool { return st.Load().Ready })
	last := st.Load()

	close(f.stream(0).ch)
	waitFor(t, func() bool { return !m.Stats().Active })

	if st.Load() != last {
		t.Error("连接中断后应保留最后一次状态")
	}
	if st.Load().LastMessageAtMs == 0 {
		t.Error("LastMessageAtMs 应记录最后一条消息时间")
	}
}

func TestManager_SwitchAfterStop(t *testing.T) {
	f := &fakeFactory{}
	m, _ := newTestManager(t, f)
	cancel := startManager(t, m, model.DefaultPairs()[0])
	cancel()
	<-m.done

	if _, err := m.Switch(context.Background(), "ETHUSDT"); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v, want ErrStopped", err)
	}
	if !f.stream(0).isClosed() {
		t.Error("停止后订阅应被关闭")
	}
}
