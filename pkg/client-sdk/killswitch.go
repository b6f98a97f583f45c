package client_sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// KillSwitchController хранит принудительные значения флагов. Рубильник
// абсолютен: он перекрывает и значение с сервера, и раскатку, переживает
// любые обновления конфигурации и снимается только явно.
//
// Состояние живет в памяти процесса: рубильник - аварийный инструмент,
// а не персистентная настройка.
type KillSwitchController struct {
	mu        sync.RWMutex
	overrides map[string]bool
	fileKeys  map[string]struct{}
}

func NewKillSwitchController() *KillSwitchController {
	return &KillSwitchController{
		overrides: make(map[string]bool),
		fileKeys:  make(map[string]struct{}),
	}
}

// Set принудительно выставляет флагу значение enabled.
func (c *KillSwitchController) Set(feature string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[feature] = enabled
}

// Clear снимает рубильник; дальше флаг живет по конфигурации.
func (c *KillSwitchController) Clear(feature string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overrides, feature)
	delete(c.fileKeys, feature)
}

// Lookup возвращает принудительное значение флага, если оно есть.
func (c *KillSwitchController) Lookup(feature string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	forced, ok := c.overrides[feature]
	return forced, ok
}

// Resolve применяет рубильник к вычисленному значению флага.
func (c *KillSwitchController) Resolve(feature string, computed bool) bool {
	if forced, ok := c.Lookup(feature); ok {
		return forced
	}
	return computed
}

// Overrides возвращает копию текущего набора рубильников.
func (c *KillSwitchController) Overrides() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]bool, len(c.overrides))
	for feature, forced := range c.overrides {
		out[feature] = forced
	}
	return out
}

// applyFileOverrides замещает набор рубильников, пришедших из файла.
// Рубильники, выставленные через Set, не затрагиваются, если файл не
// переопределяет ту же фичу.
func (c *KillSwitchController) applyFileOverrides(next map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for feature := range c.fileKeys {
		if _, still := next[feature]; !still {
			delete(c.overrides, feature)
		}
	}

	c.fileKeys = make(map[string]struct{}, len(next))
	for feature, forced := range next {
		c.overrides[feature] = forced
		c.fileKeys[feature] = struct{}{}
	}
}

/*
Формат файла рубильников:

	{
	  "multiplayer": false,
	  "holiday_banner": true
	}
*/
func loadKillSwitchFile(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kill switch file: %w", err)
	}
	var overrides map[string]bool
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse kill switch file: %w", err)
	}
	return overrides, nil
}

// watchKillSwitchFile отслеживает файл рубильников и применяет его на лету.
// Наблюдение ведется за каталогом: редакторы и оркестраторы заменяют файл
// переименованием, и watch на сам файл после этого слепнет.
func watchKillSwitchFile(ctx context.Context, path string, switches *KillSwitchController, logger *zap.Logger) {
	if overrides, err := loadKillSwitchFile(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("could not load kill switch file", zap.String("path", path), zap.Error(err))
		}
	} else {
		switches.applyFileOverrides(overrides)
		logger.Info("applied kill switch file", zap.String("path", path), zap.Int("overrides", len(overrides)))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create kill switch watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Error("failed to watch kill switch directory", zap.String("path", path), zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}

			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && !fileExists(path) {
				switches.applyFileOverrides(nil)
				logger.Info("kill switch file removed, file overrides cleared", zap.String("path", path))
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			overrides, err := loadKillSwitchFile(path)
			if err != nil {
				logger.Warn("could not reload kill switch file", zap.String("path", path), zap.Error(err))
				continue
			}
			switches.applyFileOverrides(overrides)
			logger.Info("reloaded kill switch file", zap.String("path", path), zap.Int("overrides", len(overrides)))

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("kill switch watcher error", zap.Error(err))
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
