package client_sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// Parser интерпретирует сырой ответ сервера в типизированный снапшот.
//
// Политика устойчивости: базой служит DefaultSnapshot, поверх которого
// накладываются только валидные поля ответа. Битое или отсутствующее поле
// оставляет значение по умолчанию, битый флаг/эксперимент/событие
// пропускается с предупреждением. ParseError возникает только когда ответ
// не пригоден целиком.
type Parser struct {
	logger *zap.Logger
}

func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// wireDoc - схема документа конфигурации на проводе. Все секции читаются
// как json.RawMessage, чтобы ошибка типа в одной секции не валила разбор
// документа целиком.
type wireDoc struct {
	Version      json.RawMessage `json:"version"`
	Balance      json.RawMessage `json:"balance"`
	Monetization json.RawMessage `json:"monetization"`
	Performance  json.RawMessage `json:"performance"`
	Debug        json.RawMessage `json:"debug"`
	Features     json.RawMessage `json:"features"`
	Experiments  json.RawMessage `json:"experiments"`
	LiveOps      json.RawMessage `json:"live_ops"`
}

type wireLiveOps struct {
	Events   []json.RawMessage `json:"events"`
	Messages []json.RawMessage `json:"messages"`
}

// Parse строит снапшот из сырого ответа. Источник и момент получения
// проставляются здесь же.
func (p *Parser) Parse(raw rc_types.RawSnapshot) (*rc_types.Snapshot, error) {
	if raw.IsZero() {
		return nil, &ParseError{Err: errors.New("empty payload")}
	}

	var doc wireDoc
	if err := json.Unmarshal(raw.Bytes(), &doc); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("payload is not a config document: %w", err)}
	}

	snap := rc_types.DefaultSnapshot()
	snap.Source = rc_types.SourceRemote
	snap.FetchedAt = time.Now()
	snap.Version = p.parseVersion(doc.Version)

	p.overlayValues(snap.Balance, doc.Balance, rc_types.SectionBalance)
	p.overlayValues(snap.Monetization, doc.Monetization, rc_types.SectionMonetization)
	p.overlayValues(snap.Performance, doc.Performance, rc_types.SectionPerformance)
	p.overlayValues(snap.Debug, doc.Debug, rc_types.SectionDebug)

	if flags, ok := p.parseFeatures(doc.Features); ok {
		// Сервер - источник истины для набора флагов: валидная секция
		// замещает дефолтный набор целиком.
		snap.Features = flags
	}

	snap.Experiments = p.parseExperiments(doc.Experiments)
	snap.LiveOps = p.parseLiveOps(doc.LiveOps)

	p.logger.Info("parsed config snapshot",
		zap.String("version", snap.Version),
		zap.Int("features", len(snap.Features)),
		zap.Int("experiments", len(snap.Experiments)),
		zap.Int("live_events", len(snap.LiveOps.Events)))
	return snap, nil
}

func (p *Parser) parseVersion(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var version string
	if err := json.Unmarshal(raw, &version); err != nil {
		p.logger.Warn("config version is not a string, ignoring", zap.Error(err))
		return ""
	}
	return version
}

// overlayValues накладывает валидные скаляры секции поверх значений
// по умолчанию. dst модифицируется на месте.
func (p *Parser) overlayValues(dst rc_types.ValueMap, raw json.RawMessage, section rc_types.SectionName) {
	if len(raw) == 0 {
		return
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		p.logger.Warn("config section is not an object, keeping defaults",
			zap.String("section", string(section)), zap.Error(err))
		return
	}

	for key, rawVal := range entries {
		var v rc_types.Value
		if err := json.Unmarshal(rawVal, &v); err != nil {
			p.logger.Warn("skipping config value of unsupported type",
				zap.String("section", string(section)), zap.String("key", key), zap.Error(err))
			continue
		}
		dst[key] = v
	}
}

func (p *Parser) parseFeatures(raw json.RawMessage) (rc_types.FeatureFlagSet, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		p.logger.Warn("features section is not an object, keeping defaults", zap.Error(err))
		return nil, false
	}

	flags := make(rc_types.FeatureFlagSet, len(entries))
	for name, rawFlag := range entries {
		var flag rc_types.FeatureFlag
		if err := json.Unmarshal(rawFlag, &flag); err != nil {
			p.logger.Warn("skipping malformed feature flag",
				zap.String("feature", name), zap.Error(err))
			continue
		}
		flags[name] = flag
	}
	return flags, true
}

func (p *Parser) parseExperiments(raw json.RawMessage) []rc_types.Experiment {
	if len(raw) == 0 {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		p.logger.Warn("experiments section is not an array, dropping", zap.Error(err))
		return nil
	}

	experiments := make([]rc_types.Experiment, 0, len(entries))
	for i, rawExp := range entries {
		var exp rc_types.Experiment
		if err := json.Unmarshal(rawExp, &exp); err != nil {
			p.logger.Warn("skipping malformed experiment",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		if err := exp.Validate(); err != nil {
			p.logger.Warn("skipping invalid experiment", zap.Error(err))
			continue
		}
		experiments = append(experiments, exp)
	}
	return experiments
}

func (p *Parser) parseLiveOps(raw json.RawMessage) rc_types.LiveOpsSection {
	var out rc_types.LiveOpsSection
	if len(raw) == 0 {
		return out
	}

	var section wireLiveOps
	if err := json.Unmarshal(raw, &section); err != nil {
		p.logger.Warn("live_ops section is malformed, dropping", zap.Error(err))
		return out
	}

	for i, rawEvent := range section.Events {
		var event rc_types.LiveEvent
		if err := json.Unmarshal(rawEvent, &event); err != nil || event.ID == "" {
			p.logger.Warn("skipping malformed live event", zap.Int("index", i), zap.Error(err))
			continue
		}
		out.Events = append(out.Events, event)
	}
	for i, rawMsg := range section.Messages {
		var msg rc_types.LiveMessage
		if err := json.Unmarshal(rawMsg, &msg); err != nil || msg.ID == "" {
			p.logger.Warn("skipping malformed live message", zap.Int("index", i), zap.Error(err))
			continue
		}
		out.Messages = append(out.Messages, msg)
	}
	return out
}
