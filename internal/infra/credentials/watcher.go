package credentials

import (
	"encoding/json"
	"os"

	"github.com/fsnotify/fsnotify"

	"mediaqueue/internal/infra"
)

// LoadFile reads a JSON credentials file mapping provider names to API keys
// and applies it to the store.
func LoadFile(path string, store *Store) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	keys := map[string]string{}
	if err := json.Unmarshal(raw, &keys); err != nil {
		return err
	}
	for provider, key := range keys {
		store.Set(provider, key)
	}
	return nil
}

// Watch re-applies the credentials file whenever it is rewritten. Supplying
// fresh keys through the file is how an operator recovers a provider from
// quota exhaustion without restarting the service: each applied key fires the
// store's update hook. Watch blocks until the watcher fails or is closed.
func Watch(path string, store *Store, logger infra.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	logger.Info().Str("path", path).Msg("credentials: watching file")
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := LoadFile(path, store); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("credentials: reload failed")
				continue
			}
			logger.Info().Str("path", path).Msg("credentials: reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("credentials: watcher error")
		}
	}
}
