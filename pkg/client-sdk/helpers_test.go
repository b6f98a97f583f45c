package client_sdk

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

func testLogger() *zap.Logger { return zap.NewNop() }

// fakeFetcher - управляемый транспорт для тестов: настраиваемый ответ,
// настраиваемая ошибка, счетчик вызовов и опциональная блокировка запроса.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	payload []byte
	err     error
	block   chan struct{}

	// started получает сигнал при входе в каждый Fetch.
	started chan struct{}
}

func newFakeFetcher(payload string) *fakeFetcher {
	return &fakeFetcher{
		payload: []byte(payload),
		started: make(chan struct{}, 64),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, _, _ rc_types.ValueMap) (rc_types.RawSnapshot, error) {
	f.mu.Lock()
	f.calls++
	payload, err, block := f.payload, f.err, f.block
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return rc_types.RawSnapshot{}, classifyTransportError(ctx.Err())
		}
	}

	if err != nil {
		return rc_types.RawSnapshot{}, err
	}
	return rc_types.NewRawSnapshot(payload)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) setPayload(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payload = []byte(payload)
}

func (f *fakeFetcher) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// setBlock заставляет последующие Fetch ждать закрытия канала.
func (f *fakeFetcher) setBlock(block chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = block
}

// drainStarted сбрасывает накопленные сигналы о начатых запросах.
func (f *fakeFetcher) drainStarted() {
	for {
		select {
		case <-f.started:
		default:
			return
		}
	}
}

// memStore - ConfigStore в памяти.
type memStore struct {
	mu      sync.Mutex
	records map[string]memRecord
}

type memRecord struct {
	data    []byte
	savedAt time.Time
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]memRecord)}
}

func (s *memStore) Save(key string, data []byte, savedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.records[key] = memRecord{data: buf, savedAt: savedAt}
	return nil
}

func (s *memStore) Load(key string) ([]byte, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	return rec.data, rec.savedAt, true, nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	return ok
}

// fakeExposures накапливает exposure-события.
type fakeExposures struct {
	mu     sync.Mutex
	events []rc_types.ExposureEvent
}

func (p *fakeExposures) Publish(_ context.Context, event rc_types.ExposureEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakeExposures) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *fakeExposures) last() (rc_types.ExposureEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return rc_types.ExposureEvent{}, false
	}
	return p.events[len(p.events)-1], true
}
