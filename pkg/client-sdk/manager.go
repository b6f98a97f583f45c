package client_sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// State - состояние жизненного цикла клиента.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBootstrapping State = "bootstrapping"
	StateReady         State = "ready"
	StateRefreshing    State = "refreshing"

	// StateDegraded - отдавать нечего: нет ни сети, ни кеша, ни дефолтов.
	// Состояние не терминально, фоновые попытки продолжаются.
	StateDegraded State = "degraded"
)

// refreshCall - одно скоалесцированное обновление: все конкурентные
// вызовы Refresh ждут общий результат единственного сетевого запроса.
type refreshCall struct {
	done chan struct{}
	err  error
}

// Manager - основной объект SDK: владеет активным снапшотом, фоновым
// обновлением, кешем назначений и рубильниками.
//
// Запросы значений никогда не ошибаются и не блокируются: они читают
// последний опубликованный снапшот. Замена снапшота атомарна относительно
// читателей.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	metrics *sdkMetrics

	attrs    AttributeProvider
	fetcher  RemoteFetcher
	store    ConfigStore
	parser   *Parser
	rollout  RolloutEngine
	assigner *ExperimentAssigner
	detector ChangeDetector
	switches *KillSwitchController

	// mu защищает активный снапшот и состояние жизненного цикла.
	mu           sync.RWMutex
	active       *rc_types.Snapshot
	state        State
	started      bool
	hadRemote    bool
	lastSuccess  time.Time
	backgrounded bool

	// refreshMu защищает единственный слот активного обновления.
	refreshMu sync.Mutex
	inflight  *refreshCall

	// assignMu защищает кеш назначений экспериментов.
	assignMu    sync.Mutex
	assignments map[string]rc_types.Assignment

	subMu      sync.Mutex
	changeSubs map[int]func(ChangeSet)
	errorSubs  map[int]func(error)
	nextSubID  int

	forceLimiter *rate.Limiter

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	nudgeReader  *kafka.Reader
	exposures    ExposurePublisher
	ownExposures *KafkaExposurePublisher

	closeOnce sync.Once
	closeErr  error
}

// NewManager собирает клиента по конфигу, не трогая ни сеть, ни диск
// (кроме создания каталога кеша). Сетевую работу начинает Initialize.
func NewManager(cfg Config) (*Manager, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	m := &Manager{
		cfg:          cfg,
		logger:       cfg.Logger,
		metrics:      registerMetrics(cfg.Registerer),
		attrs:        cfg.Attributes,
		parser:       NewParser(cfg.Logger),
		assigner:     NewExperimentAssigner(cfg.Logger),
		switches:     NewKillSwitchController(),
		state:        StateUninitialized,
		assignments:  make(map[string]rc_types.Assignment),
		changeSubs:   make(map[int]func(ChangeSet)),
		errorSubs:    make(map[int]func(error)),
		forceLimiter: rate.NewLimiter(rate.Every(cfg.ForceRefreshInterval), cfg.ForceRefreshBurst),
	}

	m.fetcher = cfg.Fetcher
	if m.fetcher == nil {
		m.fetcher = NewHTTPFetcher(cfg.Endpoint, cfg.Namespace, cfg.FetchTimeout, cfg.Logger)
	}

	m.store = cfg.Store
	if m.store == nil {
		store, err := NewFileStore(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		m.store = store
	}

	m.exposures = cfg.Exposures
	if m.exposures == nil && len(cfg.KafkaBrokers) > 0 {
		m.ownExposures = NewKafkaExposurePublisher(cfg.KafkaBrokers, cfg.ExposureTopic)
		m.exposures = m.ownExposures
	}

	return m, nil
}

// Initialize поднимает клиента: кеш -> дефолты -> Ready, первый сетевой
// запрос уходит в фоне. Если поднять нечего (ни кеша, ни дефолтов),
// выполняется одна синхронная попытка; ее провал оставляет клиента в
// Degraded и возвращает ErrNoConfigAvailable.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("config client is already initialized")
	}
	m.runCtx, m.runCancel = context.WithCancel(context.Background())
	m.started = true
	m.state = StateBootstrapping
	m.mu.Unlock()

	m.loadAssignments()

	bootstrap := m.loadCachedSnapshot()
	if bootstrap == nil && m.cfg.Defaults != nil {
		snap := *m.cfg.Defaults
		snap.Source = rc_types.SourceDefault
		if snap.FetchedAt.IsZero() {
			snap.FetchedAt = time.Now()
		}
		bootstrap = &snap
	}

	m.startBackground()

	if bootstrap != nil {
		cs := m.detector.Diff(nil, bootstrap, m.resolveFlagIn)
		m.swapSnapshot(bootstrap, cs)

		// Первое сетевое обновление не задерживает запуск приложения.
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			_ = m.refresh(m.runCtx, false)
		}()

		m.logger.Info("config client initialized",
			zap.String("namespace", m.cfg.Namespace),
			zap.String("source", string(bootstrap.Source)),
			zap.String("version", bootstrap.Version))
		return nil
	}

	if err := m.refresh(ctx, false); err != nil {
		m.setState(StateDegraded)
		m.logger.Error("config client has NOTHING to serve: no remote, no cache, no defaults",
			zap.String("namespace", m.cfg.Namespace), zap.Error(err))
		return fmt.Errorf("initial fetch failed: %v: %w", err, ErrNoConfigAvailable)
	}

	m.logger.Info("config client initialized from remote",
		zap.String("namespace", m.cfg.Namespace),
		zap.String("version", m.currentVersion()))
	return nil
}

// Refresh запрашивает обновление конфигурации. Конкурентные вызовы
// коалесцируются: сетевой запрос всегда один, остальные ждут его исход.
// Отмена ctx отцепляет ожидающего, не прерывая общий запрос.
func (m *Manager) Refresh(ctx context.Context) error { return m.refresh(ctx, false) }

// ForceRefresh - внеплановое обновление по требованию приложения.
// Лимитируется, чтобы дергание из UI не превращалось в DDoS бэкенда;
// лишние вызовы тихо схлопываются.
func (m *Manager) ForceRefresh(ctx context.Context) error { return m.refresh(ctx, true) }

func (m *Manager) refresh(ctx context.Context, force bool) error {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return fmt.Errorf("config client is not initialized")
	}
	if m.isClosed() {
		return ErrClosed
	}

	if force && !m.forceLimiter.Allow() {
		m.logger.Debug("forced refresh throttled")
		return nil
	}

	m.refreshMu.Lock()
	if call := m.inflight; call != nil {
		m.refreshMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	m.refreshMu.Unlock()

	call.err = m.doRefresh()

	m.refreshMu.Lock()
	m.inflight = nil
	m.refreshMu.Unlock()
	close(call.done)

	return call.err
}

// doRefresh выполняет один цикл fetch -> parse -> diff -> swap.
// Любой сбой оставляет активный снапшот нетронутым.
func (m *Manager) doRefresh() error {
	m.mu.Lock()
	if m.state == StateReady {
		m.state = StateRefreshing
	}
	m.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(m.runCtx, m.cfg.FetchTimeout)
	defer cancel()

	raw, err := m.fetcher.Fetch(ctx, m.attrs.UserAttributes(), m.attrs.AppAttributes())
	if err != nil {
		m.metrics.fetches.WithLabelValues("error").Inc()
		m.finishFailedRefresh(err)
		return err
	}
	m.metrics.fetches.WithLabelValues("success").Inc()

	snap, err := m.parser.Parse(raw)
	if err != nil {
		m.metrics.errors.WithLabelValues("parse_error").Inc()
		m.finishFailedRefresh(err)
		return err
	}

	m.applySnapshot(snap)
	m.logger.Debug("config refresh finished", zap.Duration("took", time.Since(start)))
	return nil
}

// finishFailedRefresh восстанавливает состояние и оповещает подписчиков
// об ошибке. Остановка клиента сбоем не считается.
func (m *Manager) finishFailedRefresh(err error) {
	m.mu.Lock()
	if m.active != nil {
		m.state = StateReady
	} else {
		m.state = StateDegraded
	}
	m.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		return
	}

	m.logger.Warn("config refresh failed, keeping last good snapshot", zap.Error(err))
	m.notifyError(err)
}

// applySnapshot сравнивает новый снапшот с активным и публикует его,
// если что-то изменилось или это первый успешный удаленный снапшот.
func (m *Manager) applySnapshot(next *rc_types.Snapshot) {
	m.mu.RLock()
	old := m.active
	hadRemote := m.hadRemote
	m.mu.RUnlock()

	cs := m.detector.Diff(old, next, m.resolveFlagIn)

	if old != nil && hadRemote && !cs.Any() && old.Version == next.Version {
		m.mu.Lock()
		m.state = StateReady
		m.lastSuccess = time.Now()
		m.mu.Unlock()
		m.logger.Debug("refresh produced identical snapshot", zap.String("version", next.Version))
		return
	}

	m.persistSnapshot(next)
	m.swapSnapshot(next, cs)
	m.pruneAssignments(next)
}

// swapSnapshot атомарно публикует снапшот и оповещает подписчиков.
func (m *Manager) swapSnapshot(next *rc_types.Snapshot, cs ChangeSet) {
	m.mu.Lock()
	m.active = next
	m.state = StateReady
	m.lastSuccess = time.Now()
	if next.Source == rc_types.SourceRemote {
		m.hadRemote = true
	}
	m.mu.Unlock()

	m.metrics.setVersionMetric(next.Version)
	m.metrics.setSourceMetric(next.Source)

	m.logger.Info("config snapshot swapped",
		zap.String("version", next.Version),
		zap.String("source", string(next.Source)),
		zap.Bool("bootstrap", cs.Bootstrap),
		zap.Strings("changed_flags", cs.ChangedFlags))

	m.notifyChange(cs)
}

func (m *Manager) persistSnapshot(snap *rc_types.Snapshot) {
	now := time.Now()
	payload, err := json.Marshal(rc_types.CacheEntry{SavedAt: now, Snapshot: snap})
	if err != nil {
		m.metrics.errors.WithLabelValues("cache_error").Inc()
		m.logger.Warn("failed to encode snapshot for cache", zap.Error(err))
		return
	}

	if err := m.store.Save(m.cacheKey(), payload, now); err != nil {
		m.metrics.errors.WithLabelValues("cache_error").Inc()
		m.logger.Warn("failed to persist config snapshot",
			zap.Error(&CacheError{Op: "save", Err: err}))
	}
}

// loadCachedSnapshot читает запись кеша и решает, пригодна ли она:
// битая или старше MaxCacheAge - нет; старше CacheTTL - пригодна,
// но помечается устаревшей.
func (m *Manager) loadCachedSnapshot() *rc_types.Snapshot {
	data, savedAt, ok, err := m.store.Load(m.cacheKey())
	if err != nil {
		m.metrics.errors.WithLabelValues("cache_error").Inc()
		m.logger.Warn("config cache unreadable", zap.Error(&CacheError{Op: "load", Err: err}))
		return nil
	}
	if !ok {
		return nil
	}

	var entry rc_types.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Snapshot == nil {
		// Битый кеш опаснее отсутствующего: не гадаем, а отказываемся.
		m.metrics.errors.WithLabelValues("cache_error").Inc()
		m.logger.Warn("config cache is corrupt, refusing it",
			zap.Error(&CacheError{Op: "decode", Err: err}))
		return nil
	}
	if !entry.SavedAt.IsZero() {
		savedAt = entry.SavedAt
	}

	age := time.Since(savedAt)
	if age > m.cfg.MaxCacheAge {
		m.logger.Warn("config cache exceeds max age, refusing it", zap.Duration("age", age))
		return nil
	}
	if age > m.cfg.CacheTTL {
		m.logger.Warn("config cache is stale, serving it until refresh lands", zap.Duration("age", age))
	}

	snap := entry.Snapshot
	snap.Source = rc_types.SourceCache
	return snap
}

func (m *Manager) cacheKey() string       { return m.cfg.Namespace }
func (m *Manager) assignmentsKey() string { return m.cfg.Namespace + ".assignments" }

// ---------------------------------------------------------------------------
// Запросы. Никогда не ошибаются, никогда не блокируются.

// Snapshot возвращает активный снапшот (nil в Degraded до первого успеха).
// Снапшот неизменяем, хранить ссылку безопасно.
func (m *Manager) Snapshot() *rc_types.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// State возвращает текущее состояние жизненного цикла.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Source сообщает происхождение активного снапшота.
func (m *Manager) Source() rc_types.Source {
	if snap := m.Snapshot(); snap != nil {
		return snap.Source
	}
	return ""
}

func (m *Manager) currentVersion() string {
	if snap := m.Snapshot(); snap != nil {
		return snap.Version
	}
	return ""
}

// GetInt возвращает целочисленное значение конфигурации или fallback.
func (m *Manager) GetInt(key string, fallback int64) int64 {
	if v, ok := m.lookupValue(key); ok {
		if n, ok := v.AsInt(); ok {
			return n
		}
	}
	return fallback
}

// GetFloat возвращает вещественное значение конфигурации или fallback.
func (m *Manager) GetFloat(key string, fallback float64) float64 {
	if v, ok := m.lookupValue(key); ok {
		if f, ok := v.AsFloat(); ok {
			return f
		}
	}
	return fallback
}

// GetBool возвращает булево значение конфигурации или fallback.
func (m *Manager) GetBool(key string, fallback bool) bool {
	if v, ok := m.lookupValue(key); ok {
		if b, ok := v.AsBool(); ok {
			return b
		}
	}
	return fallback
}

// GetString возвращает строковое значение конфигурации или fallback.
func (m *Manager) GetString(key string, fallback string) string {
	if v, ok := m.lookupValue(key); ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return fallback
}

func (m *Manager) lookupValue(key string) (rc_types.Value, bool) {
	snap := m.Snapshot()
	if snap == nil {
		return rc_types.Value{}, false
	}
	return snap.Lookup(key)
}

// IsFeatureEnabled разрешает флаг для текущего пользователя:
// рубильник -> явное значение -> процент раскатки -> false.
func (m *Manager) IsFeatureEnabled(feature string) bool {
	return m.resolveFlagIn(m.Snapshot(), feature)
}

// FeatureVariant возвращает вариант оформления включенной фичи,
// пустую строку - если фича выключена или варианта нет.
func (m *Manager) FeatureVariant(feature string) string {
	snap := m.Snapshot()
	if snap == nil || !m.resolveFlagIn(snap, feature) {
		return ""
	}
	return snap.Features[feature].Variant
}

// resolveFlagIn - единая точка истины для булевого значения флага в
// рамках конкретного снапшота. Ее же использует детектор изменений.
func (m *Manager) resolveFlagIn(snap *rc_types.Snapshot, feature string) bool {
	if forced, ok := m.switches.Lookup(feature); ok {
		return forced
	}
	if snap == nil {
		return false
	}

	flag, ok := snap.Features[feature]
	if !ok || !flag.Enabled {
		return false
	}
	if flag.RolloutPercentage == nil {
		return true
	}
	return m.rollout.IsInRollout(m.attrs.StableID(), feature, *flag.RolloutPercentage)
}

// ExperimentVariant возвращает вариант пользователя в эксперименте,
// пустую строку - если пользователь не участвует.
func (m *Manager) ExperimentVariant(experimentID string) string {
	snap := m.Snapshot()
	if snap == nil {
		return ""
	}
	exp, ok := snap.ExperimentByID(experimentID)
	if !ok {
		return ""
	}
	if assignment, ok := m.assignmentFor(snap, exp); ok {
		return assignment.VariantID
	}
	return ""
}

// ExperimentGroup возвращает вариант первого (в порядке объявления)
// эксперимента, в который назначен пользователь.
func (m *Manager) ExperimentGroup() string {
	snap := m.Snapshot()
	if snap == nil {
		return ""
	}
	for i := range snap.Experiments {
		if assignment, ok := m.assignmentFor(snap, &snap.Experiments[i]); ok {
			return assignment.VariantID
		}
	}
	return ""
}

// ExperimentInt возвращает параметр варианта пользователя или fallback.
func (m *Manager) ExperimentInt(param string, fallback int64) int64 {
	if v, ok := m.experimentParam(param); ok {
		if n, ok := v.AsInt(); ok {
			return n
		}
	}
	return fallback
}

// ExperimentFloat возвращает параметр варианта пользователя или fallback.
func (m *Manager) ExperimentFloat(param string, fallback float64) float64 {
	if v, ok := m.experimentParam(param); ok {
		if f, ok := v.AsFloat(); ok {
			return f
		}
	}
	return fallback
}

// ExperimentBool возвращает параметр варианта пользователя или fallback.
func (m *Manager) ExperimentBool(param string, fallback bool) bool {
	if v, ok := m.experimentParam(param); ok {
		if b, ok := v.AsBool(); ok {
			return b
		}
	}
	return fallback
}

// ExperimentString возвращает параметр варианта пользователя или fallback.
func (m *Manager) ExperimentString(param string, fallback string) string {
	if v, ok := m.experimentParam(param); ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return fallback
}

// experimentParam ищет параметр среди назначенных экспериментов в порядке
// объявления: выигрывает первый, у чьего варианта параметр есть.
func (m *Manager) experimentParam(param string) (rc_types.Value, bool) {
	snap := m.Snapshot()
	if snap == nil {
		return rc_types.Value{}, false
	}

	for i := range snap.Experiments {
		exp := &snap.Experiments[i]
		assignment, ok := m.assignmentFor(snap, exp)
		if !ok {
			continue
		}
		for _, variant := range exp.Variants {
			if variant.ID == assignment.VariantID {
				if v, ok := variant.Params[param]; ok {
					return v, true
				}
				break
			}
		}
	}
	return rc_types.Value{}, false
}

// ActiveLiveEvents возвращает события, идущие прямо сейчас.
// Пересчитывается на каждый вызов: окно могло открыться без обновления.
func (m *Manager) ActiveLiveEvents() []rc_types.LiveEvent {
	snap := m.Snapshot()
	if snap == nil {
		return nil
	}

	now := time.Now()
	var out []rc_types.LiveEvent
	for _, event := range snap.LiveOps.Events {
		if event.ActiveAt(now) {
			out = append(out, event)
		}
	}
	return out
}

// ActiveLiveMessages возвращает сообщения, показываемые прямо сейчас.
func (m *Manager) ActiveLiveMessages() []rc_types.LiveMessage {
	snap := m.Snapshot()
	if snap == nil {
		return nil
	}

	now := time.Now()
	var out []rc_types.LiveMessage
	for _, msg := range snap.LiveOps.Messages {
		if msg.ActiveAt(now) {
			out = append(out, msg)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Рубильники.

// SetKillSwitch принудительно выставляет флагу значение, перекрывая
// конфигурацию и раскатку. Действует до ClearKillSwitch.
func (m *Manager) SetKillSwitch(feature string, enabled bool) {
	m.switches.Set(feature, enabled)
	m.logger.Warn("kill switch engaged",
		zap.String("feature", feature), zap.Bool("forced_value", enabled))
}

// ClearKillSwitch снимает рубильник.
func (m *Manager) ClearKillSwitch(feature string) {
	m.switches.Clear(feature)
	m.logger.Info("kill switch cleared", zap.String("feature", feature))
}

// KillSwitchOverrides возвращает копию действующих рубильников.
func (m *Manager) KillSwitchOverrides() map[string]bool {
	return m.switches.Overrides()
}

// ---------------------------------------------------------------------------
// Подписки.

// OnChange регистрирует подписчика на замены снапшота. Колбэк вызывается
// синхронно после каждой замены; из него нельзя звать блокирующие методы
// клиента (Refresh, Close). Возвращает функцию отписки.
func (m *Manager) OnChange(fn func(ChangeSet)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.changeSubs[id] = fn

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.changeSubs, id)
	}
}

// OnRefreshError регистрирует подписчика на сбои обновления.
func (m *Manager) OnRefreshError(fn func(error)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.errorSubs[id] = fn

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.errorSubs, id)
	}
}

func (m *Manager) notifyChange(cs ChangeSet) {
	m.subMu.Lock()
	subs := make([]func(ChangeSet), 0, len(m.changeSubs))
	for _, fn := range m.changeSubs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(cs)
	}
}

func (m *Manager) notifyError(err error) {
	m.subMu.Lock()
	subs := make([]func(error), 0, len(m.errorSubs))
	for _, fn := range m.errorSubs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(err)
	}
}

// ---------------------------------------------------------------------------
// Назначения экспериментов.

func assignmentKey(stableID, experimentID string) string {
	return stableID + "|" + experimentID
}

// assignmentFor возвращает закешированное назначение или вычисляет новое.
// Кеш инвалидируется, если определение эксперимента изменилось или
// эксперимент перестал быть активным.
func (m *Manager) assignmentFor(snap *rc_types.Snapshot, exp *rc_types.Experiment) (rc_types.Assignment, bool) {
	stableID := m.attrs.StableID()
	if stableID == "" {
		return rc_types.Assignment{}, false
	}
	key := assignmentKey(stableID, exp.ID)

	m.assignMu.Lock()
	defer m.assignMu.Unlock()

	if cached, ok := m.assignments[key]; ok {
		if cached.Fingerprint == exp.Fingerprint() && exp.ActiveAt(time.Now()) {
			return cached, true
		}
		delete(m.assignments, key)
		m.persistAssignmentsLocked()
	}

	assignment, ok := m.assigner.Assign(stableID, exp, mergedAttributes(m.attrs), time.Now())
	if !ok {
		return rc_types.Assignment{}, false
	}

	m.assignments[key] = assignment
	m.persistAssignmentsLocked()

	m.metrics.decisions.WithLabelValues(exp.ID, assignment.VariantID).Inc()
	m.logger.Info("experiment assignment made",
		zap.String("experiment_id", exp.ID),
		zap.String("variant_id", assignment.VariantID))
	m.publishExposure(stableID, assignment, snap.Version)

	return assignment, true
}

// pruneAssignments выбрасывает назначения исчезнувших или изменившихся
// экспериментов после замены снапшота.
func (m *Manager) pruneAssignments(snap *rc_types.Snapshot) {
	fingerprints := make(map[string]string, len(snap.Experiments))
	for i := range snap.Experiments {
		exp := &snap.Experiments[i]
		fingerprints[exp.ID] = exp.Fingerprint()
	}

	m.assignMu.Lock()
	defer m.assignMu.Unlock()

	changed := false
	for key, cached := range m.assignments {
		fp, exists := fingerprints[cached.ExperimentID]
		if !exists || fp != cached.Fingerprint {
			delete(m.assignments, key)
			changed = true
		}
	}
	if changed {
		m.persistAssignmentsLocked()
	}
}

func (m *Manager) loadAssignments() {
	data, _, ok, err := m.store.Load(m.assignmentsKey())
	if err != nil {
		m.logger.Warn("assignment cache unreadable", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	var records map[string]rc_types.Assignment
	if err := json.Unmarshal(data, &records); err != nil {
		m.logger.Warn("assignment cache is corrupt, starting empty", zap.Error(err))
		return
	}

	m.assignMu.Lock()
	m.assignments = records
	m.assignMu.Unlock()
	m.logger.Debug("loaded cached assignments", zap.Int("count", len(records)))
}

// persistAssignmentsLocked сохраняет кеш назначений; вызывается под assignMu.
func (m *Manager) persistAssignmentsLocked() {
	payload, err := json.Marshal(m.assignments)
	if err != nil {
		return
	}
	if err := m.store.Save(m.assignmentsKey(), payload, time.Now()); err != nil {
		m.metrics.errors.WithLabelValues("cache_error").Inc()
		m.logger.Warn("failed to persist assignments", zap.Error(err))
	}
}

func (m *Manager) publishExposure(stableID string, assignment rc_types.Assignment, version string) {
	if m.exposures == nil || m.isClosed() {
		return
	}

	event := rc_types.ExposureEvent{
		UserID:        stableID,
		Namespace:     m.cfg.Namespace,
		ExperimentID:  assignment.ExperimentID,
		VariantID:     assignment.VariantID,
		ConfigVersion: version,
		AssignedAt:    assignment.AssignedAt,
	}

	// Отправляем из отдельной горутины с фоновым контекстом, чтобы не
	// блокировать игровой код на брокере.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := m.exposures.Publish(ctx, event); err != nil {
			m.metrics.errors.WithLabelValues("exposure_publish_error").Inc()
			m.logger.Error("failed to publish exposure event", zap.Error(err))
		}
	}()
}

// ---------------------------------------------------------------------------
// Фоновые процессы.

func (m *Manager) startBackground() {
	m.wg.Add(1)
	go m.runTicker(m.runCtx)

	if m.cfg.Lifecycle != nil {
		m.wg.Add(1)
		go m.runLifecycle(m.runCtx)
	}

	if len(m.cfg.KafkaBrokers) > 0 {
		m.initNudgeReader()
		m.wg.Add(1)
		go m.runNudgeConsumer(m.runCtx)
	}

	if m.cfg.KillSwitchFilePath != "" {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			watchKillSwitchFile(m.runCtx, m.cfg.KillSwitchFilePath, m.switches, m.logger)
		}()
	}
}

// runTicker - плановое периодическое обновление. Первый интервал получает
// джиттер, чтобы парк клиентов не приходил к бэкенду строем.
func (m *Manager) runTicker(ctx context.Context) {
	defer m.wg.Done()

	first := m.cfg.RefreshInterval
	if jitter := int64(m.cfg.RefreshInterval / 10); jitter > 0 {
		first += time.Duration(rand.Int63n(jitter))
	}

	timer := time.NewTimer(first)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		m.tickRefresh(ctx)
	}

	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tickRefresh(ctx)
		}
	}
}

func (m *Manager) tickRefresh(ctx context.Context) {
	m.mu.RLock()
	paused := m.backgrounded
	m.mu.RUnlock()
	if paused {
		// В фоне не жжем ни сеть, ни батарею.
		return
	}
	_ = m.refresh(ctx, false)
}

// runLifecycle реагирует на сворачивание и возврат приложения: в фоне
// плановые обновления приостанавливаются, по возврату конфигурация
// обновляется, если успела протухнуть.
func (m *Manager) runLifecycle(ctx context.Context) {
	defer m.wg.Done()

	events := m.cfg.Lifecycle.Events()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}

			switch event.Kind {
			case AppBackgrounded:
				m.mu.Lock()
				m.backgrounded = true
				m.mu.Unlock()
				m.logger.Debug("app backgrounded, periodic refresh paused")

			case AppForegrounded:
				m.mu.Lock()
				m.backgrounded = false
				stale := event.At.Sub(m.lastSuccess) >= m.cfg.ForegroundRefreshThreshold
				m.mu.Unlock()

				if stale {
					m.logger.Info("app foregrounded with stale config, refreshing")
					_ = m.refresh(ctx, false)
				}
			}
		}
	}
}

func (m *Manager) initNudgeReader() {
	m.nudgeReader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  m.cfg.KafkaBrokers,
		GroupID:  m.cfg.KafkaGroupID,
		Topic:    m.cfg.SnapshotMetaTopic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}

// runNudgeConsumer слушает анонсы публикации снапшотов. Анонс - только
// сигнал: данные всегда приходят через обычный скоалесцированный refresh,
// поэтому push-канал не добавляет ни второго пути данных, ни гонок.
func (m *Manager) runNudgeConsumer(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("snapshot announcement consumer shutting down")
			return
		default:
			msg, err := m.nudgeReader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				m.metrics.errors.WithLabelValues("kafka_read_error").Inc()
				m.logger.Error("failed to read snapshot announcement", zap.Error(err))
				continue
			}

			var meta rc_types.SnapshotMeta
			if err := json.Unmarshal(msg.Value, &meta); err != nil {
				m.metrics.errors.WithLabelValues("kafka_read_error").Inc()
				m.logger.Error("failed to unmarshal snapshot announcement", zap.Error(err))
				continue
			}

			if meta.Namespace != "" && meta.Namespace != m.cfg.Namespace {
				continue
			}
			if meta.Version != "" && meta.Version == m.currentVersion() {
				continue
			}

			m.logger.Info("snapshot announcement received, refreshing",
				zap.String("announced_version", meta.Version))
			_ = m.refresh(ctx, false)
		}
	}
}

// ---------------------------------------------------------------------------

func (m *Manager) setState(next State) {
	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
}

func (m *Manager) isClosed() bool {
	return m.runCtx != nil && m.runCtx.Err() != nil
}

// Close останавливает фоновые процессы, отменяет активный сетевой запрос
// и освобождает ресурсы. Идемпотентен. Запросы значений продолжают
// работать по последнему снапшоту.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.logger.Info("shutting down config client")

		if m.runCancel != nil {
			m.runCancel()
		}
		m.wg.Wait()

		if m.nudgeReader != nil {
			if err := m.nudgeReader.Close(); err != nil {
				m.closeErr = errors.Join(m.closeErr, err)
			}
		}
		if m.ownExposures != nil {
			if err := m.ownExposures.Close(); err != nil {
				m.closeErr = errors.Join(m.closeErr, err)
			}
		}
	})
	return m.closeErr
}
