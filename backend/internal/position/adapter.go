// Package position persists node coordinates to the prompt store without
// ever blocking or failing the caller.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/prompt"
	apperrors "prompt-studio/backend/pkg/errors"
	"prompt-studio/backend/pkg/logger"
)

// DefaultWriteTimeout bounds a single persist
const DefaultWriteTimeout = 10 * time.Second

var positionWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "structure_position_writes_total",
	Help: "Flow position persists by result",
}, []string{"result"})

// Writer is the remote call the adapter issues
type Writer interface {
	PatchPosition(ctx context.Context, name, version string, pos prompt.Position) error
}

// Adapter issues one fire-and-forget partial update per completed drag
type Adapter struct {
	writer  Writer
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewAdapter creates a position adapter writing through w
func NewAdapter(w Writer, log *zap.Logger) *Adapter {
	if log == nil {
		log = logger.Named("position")
	}
	return &Adapter{
		writer:  w,
		timeout: DefaultWriteTimeout,
		logger:  log,
	}
}

// SetTimeout changes the per-write timeout
func (a *Adapter) SetTimeout(timeout time.Duration) {
	a.timeout = timeout
}

// Persist dispatches the rounded position of name/version and returns at once.
// Writes are not sequenced against each other; the store keeps the last one
// that lands. The write outlives the view that issued it.
func (a *Adapter) Persist(name, version string, pos prompt.Position) {
	rounded := pos.Rounded()
	key := prompt.Key(name, version)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.writer.PatchPosition(ctx, name, version, rounded); err != nil {
			positionWrites.WithLabelValues("error").Inc()
			failure := apperrors.NewPositionWriteFailed(key, int(rounded.X), int(rounded.Y), err)
			a.logger.Warn("Failed to save position",
				zap.String("node", key),
				zap.Any("payload", prompt.NewPositionPatch(rounded)),
				zap.Error(failure),
			)
			return
		}

		positionWrites.WithLabelValues("ok").Inc()
		a.logger.Debug("Position saved",
			zap.String("node", key),
			zap.Float64("x", rounded.X),
			zap.Float64("y", rounded.Y),
		)
	}()
}

// Wait blocks until every dispatched write has finished
func (a *Adapter) Wait() {
	a.wg.Wait()
}
