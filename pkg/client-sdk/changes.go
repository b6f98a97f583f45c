package client_sdk

import (
	"reflect"
	"sort"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// ChangeSet описывает, что изменилось между двумя снапшотами. Доставляется
// подписчикам при каждой замене активного снапшота.
type ChangeSet struct {
	// Bootstrap - это первый снапшот, сравнивать было не с чем.
	Bootstrap bool

	PreviousVersion string
	Version         string

	// Sections - какие секции изменились по содержимому.
	Sections map[rc_types.SectionName]bool

	// ChangedFlags - имена фич, чье РАЗРЕШЕННОЕ булево значение (включая
	// раскатку и рубильники) изменилось для текущего пользователя.
	// Отсортированы для детерминизма.
	ChangedFlags []string
}

// Any сообщает, изменилась ли хоть одна секция.
func (cs ChangeSet) Any() bool {
	if cs.Bootstrap {
		return true
	}
	for _, changed := range cs.Sections {
		if changed {
			return true
		}
	}
	return false
}

// flagResolver вычисляет итоговое булево значение флага в рамках снапшота.
type flagResolver func(snap *rc_types.Snapshot, feature string) bool

// ChangeDetector сравнивает снапшоты посекционно. Детектор не знает про
// рубильники и раскатку: итоговое значение флага ему дает resolve,
// замкнутый на текущее состояние клиента.
type ChangeDetector struct{}

// Diff строит ChangeSet перехода old -> next. nil old означает первый
// снапшот: все секции считаются изменившимися, в ChangedFlags попадают
// все флаги, разрешившиеся в true.
func (ChangeDetector) Diff(old, next *rc_types.Snapshot, resolve flagResolver) ChangeSet {
	cs := ChangeSet{
		Version:  next.Version,
		Sections: make(map[rc_types.SectionName]bool),
	}

	if old == nil {
		cs.Bootstrap = true
		for _, name := range rc_types.ValueSections {
			cs.Sections[name] = true
		}
		cs.Sections[rc_types.SectionFeatures] = true
		cs.Sections[rc_types.SectionExperiments] = true
		cs.Sections[rc_types.SectionLiveOps] = true

		for name := range next.Features {
			if resolve(next, name) {
				cs.ChangedFlags = append(cs.ChangedFlags, name)
			}
		}
		sort.Strings(cs.ChangedFlags)
		return cs
	}

	cs.PreviousVersion = old.Version

	for _, name := range rc_types.ValueSections {
		oldSection, _ := old.ValueSection(name)
		newSection, _ := next.ValueSection(name)
		cs.Sections[name] = !reflect.DeepEqual(oldSection, newSection)
	}
	cs.Sections[rc_types.SectionFeatures] = !reflect.DeepEqual(old.Features, next.Features)
	cs.Sections[rc_types.SectionExperiments] = !reflect.DeepEqual(old.Experiments, next.Experiments)
	cs.Sections[rc_types.SectionLiveOps] = !reflect.DeepEqual(old.LiveOps, next.LiveOps)

	// Флаги сравниваются по разрешенному значению, а не по определению:
	// игроку важно не определение, а то, включилась ли у него фича.
	for _, name := range unionFlagNames(old.Features, next.Features) {
		if resolve(old, name) != resolve(next, name) {
			cs.ChangedFlags = append(cs.ChangedFlags, name)
		}
	}
	sort.Strings(cs.ChangedFlags)
	return cs
}

func unionFlagNames(a, b rc_types.FeatureFlagSet) []string {
	names := make(map[string]struct{}, len(a)+len(b))
	for name := range a {
		names[name] = struct{}{}
	}
	for name := range b {
		names[name] = struct{}{}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	return out
}
