package anomaly

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/agubarev/aegis/pkg/baseline"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// score thresholds
const (
	DefaultNormalThreshold = 0.6
	DefaultAlertThreshold  = 0.75
)

// Assessment is the outcome of scoring a single observation
type Assessment struct {
	Score          float64 `json:"score"`
	Mature         bool    `json:"mature"`
	ModelAvailable bool    `json:"model_available"`
}

type modelRef struct {
	model *Model
}

// Scorer scores observations against device profiles with the
// currently loaded forest; the forest is swapped atomically
type Scorer struct {
	model           atomic.Value // holds modelRef
	warned          int32
	minObservations uint64
	logger          *zap.Logger
}

// NewScorer initializes a scorer without a model
func NewScorer(minObservations uint64) *Scorer {
	if minObservations == 0 {
		minObservations = baseline.DefaultMinObservations
	}

	s := &Scorer{minObservations: minObservations}
	s.model.Store(modelRef{})

	return s
}

// SetLogger assigns a logger to this scorer
func (s *Scorer) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[anomaly]")
	}

	s.logger = logger

	return nil
}

// Logger returns own logger
func (s *Scorer) Logger() *zap.Logger {
	if s.logger == nil {
		s.logger = util.FallbackLogger(nil, "[anomaly]")
	}

	return s.logger
}

// MinObservations returns the profile maturity threshold
func (s *Scorer) MinObservations() uint64 {
	return s.minObservations
}

// Model returns the active model, nil when none is loaded
func (s *Scorer) Model() *Model {
	return s.model.Load().(modelRef).model
}

// SetModel swaps the active model; nil unloads it
func (s *Scorer) SetModel(m *Model) error {
	if m != nil {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	s.model.Store(modelRef{model: m})
	atomic.StoreInt32(&s.warned, 0)

	if m != nil {
		s.Logger().Info(
			"model loaded",
			zap.Int("trees", len(m.Trees)),
			zap.Int("sample_size", m.SampleSize),
			zap.Time("created_at", m.CreatedAt),
		)
	}

	return nil
}

// LoadModel loads an artifact from disk and swaps it in; on failure
// the current model is kept
func (s *Scorer) LoadModel(path string) error {
	m, err := LoadFile(path)
	if err != nil {
		return errors.Wrap(ErrModelUnavailable, err.Error())
	}

	return s.SetModel(m)
}

// Score scores an observation against a profile snapshot
func (s *Scorer) Score(o baseline.Observation, p baseline.Profile) Assessment {
	m := s.Model()

	a := Assessment{
		Mature:         p.IsMature(s.minObservations),
		ModelAvailable: m != nil,
	}

	switch {
	case !a.Mature:
		// nothing to compare against yet
		a.Score = 1
	case m == nil:
		if atomic.CompareAndSwapInt32(&s.warned, 0, 1) {
			s.Logger().Warn("no anomaly model loaded, scoring degraded to severity only")
		}

		a.Score = 0
	default:
		a.Score = m.Score(Features(o, p))
	}

	return a
}

// Watch reloads the artifact whenever it changes, until ctx is done
func (s *Scorer) Watch(ctx context.Context, path string) error {
	if path == "" {
		return ErrEmptyModelPath
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to initialize model watcher")
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

				if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				if err := s.LoadModel(path); err != nil {
					s.Logger().Warn("model reload failed, keeping current model", zap.Error(err))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}

				s.Logger().Warn("model watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
