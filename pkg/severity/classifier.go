package severity

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/agubarev/aegis/pkg/util"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/r3labs/diff"
	"go.uber.org/zap"
)

// Classifier holds the active rule table and swaps it atomically on reload
type Classifier struct {
	rules  atomic.Value // holds RuleSet
	logger *zap.Logger
}

// NewClassifier initializes a classifier; an empty rule set falls back
// to the default table
func NewClassifier(rs RuleSet) (*Classifier, error) {
	if len(rs.Rules) == 0 {
		rs = DefaultRules()
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{}
	c.rules.Store(rs.compile())

	return c, nil
}

// SetLogger assigns a logger to this classifier
func (c *Classifier) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[severity]")
	}

	c.logger = logger

	return nil
}

// Logger returns own logger
func (c *Classifier) Logger() *zap.Logger {
	if c.logger == nil {
		c.logger = util.FallbackLogger(nil, "[severity]")
	}

	return c.logger
}

// Rules returns the active, compiled rule set
func (c *Classifier) Rules() RuleSet {
	return c.rules.Load().(RuleSet)
}

// Classify classifies a command line against the active rule table
func (c *Classifier) Classify(command string) Severity {
	return classifyCompiled(c.Rules(), command)
}

// SetRules validates and swaps the active rule table
func (c *Classifier) SetRules(rs RuleSet) (diff.Changelog, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	next := rs.compile()
	prev := c.Rules()

	changelog, err := diff.Diff(prev, next)
	if err != nil {
		return nil, errors.Wrap(err, "failed to diff rule sets")
	}

	c.rules.Store(next)

	for _, change := range changelog {
		c.Logger().Debug(
			"rule change",
			zap.String("type", change.Type),
			zap.String("path", strings.Join(change.Path, ".")),
		)
	}

	c.Logger().Info("rule set applied", zap.Int("rules", len(next.Rules)), zap.Int("changes", len(changelog)))

	return changelog, nil
}

// Reload loads the rule file and applies it; a broken file keeps
// the current table in place
func (c *Classifier) Reload(path string) error {
	rs, err := LoadRules(path)
	if err != nil {
		c.Logger().Warn("rule reload failed, keeping current rules", zap.String("path", path), zap.Error(err))
		return err
	}

	_, err = c.SetRules(rs)

	return err
}

// Watch reloads the rule file whenever it changes, until ctx is done
// NOTE: the directory is watched, editors often replace files by rename
func (c *Classifier) Watch(ctx context.Context, path string) error {
	if path == "" {
		return ErrEmptyRulePath
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to initialize rule watcher")
	}

	path = filepath.Clean(path)

	if err = w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return errors.Wrapf(err, "failed to watch %s", path)
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				if filepath.Clean(ev.Name) != path {
					continue
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				c.Reload(path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}

				c.Logger().Warn("rule watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
