package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch следит за каталогом и вызывает onChange после серии изменений (с задержкой debounce).
// Следим за директорией, а не за файлом: редакторы и k8s configmap заменяют файл переименованием.
// Блокируется до отмены контекста.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *zap.Logger, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	defer w.Close()

	dir, match := watchTarget(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("catalog watcher: watching %s: %w", dir, err)
	}
	log := logger.With(zap.String("mod", "catalog_watch"), zap.String("path", path))
	log.Info("catalog watch started")

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			log.Info("catalog watch stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !match(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			log.Debug("catalog file event", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}

		case <-fire:
			log.Info("catalog changed, reloading")
			onChange()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("catalog watcher error", zap.Error(err))
		}
	}
}

// watchTarget возвращает директорию для подписки и фильтр интересных событий
func watchTarget(path string) (string, func(string) bool) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path, isYAML
	}
	clean := filepath.Clean(path)
	return filepath.Dir(clean), func(name string) bool { return filepath.Clean(name) == clean }
}
