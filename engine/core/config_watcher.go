package core

import (
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher re-decodes the engine configuration every time the file is written.
// Invalid files are logged and skipped, the last good configuration stays active.
type ConfigWatcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	updates  chan *EngineConfig
	done     chan struct{}
	isClosed bool
}

func NewConfigWatcher(path string) (*ConfigWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory, editors replace files on save
	if err := fsWatch.Add(filepath.Dir(path)); err != nil {
		fsWatch.Close()
		return nil, err
	}
	cw := &ConfigWatcher{
		path:     filepath.Clean(path),
		fsnotify: fsWatch,
		updates:  make(chan *EngineConfig, 1),
		done:     make(chan struct{}),
	}
	go cw.start()
	return cw, nil
}

// Poll returns the most recent reloaded configuration, if any, without blocking.
func (cw *ConfigWatcher) Poll() (*EngineConfig, bool) {
	select {
	case cfg, ok := <-cw.updates:
		return cfg, ok && cfg != nil
	default:
		return nil, false
	}
}

// Updates exposes the reload channel. It is closed by Close.
func (cw *ConfigWatcher) Updates() <-chan *EngineConfig {
	return cw.updates
}

func (cw *ConfigWatcher) Close() error {
	if cw.isClosed {
		return errors.New("config watcher already closed")
	}
	cw.isClosed = true
	close(cw.done)
	return nil
}

func (cw *ConfigWatcher) start() {
	for {
		select {
		case e, ok := <-cw.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != cw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := LoadConfig(cw.path)
			if err != nil {
				LogError("config reload failed: %s", err)
				continue
			}
			cw.publish(cfg)

		case err, ok := <-cw.fsnotify.Errors:
			if !ok {
				return
			}
			LogError("%s", err)

		case <-cw.done:
			cw.fsnotify.Close()
			close(cw.updates)
			return
		}
	}
}

// publish keeps only the newest configuration in the channel.
func (cw *ConfigWatcher) publish(cfg *EngineConfig) {
	for {
		select {
		case cw.updates <- cfg:
			return
		default:
			select {
			case <-cw.updates:
			default:
			}
		}
	}
}
