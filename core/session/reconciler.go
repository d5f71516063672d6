package session

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/darasa/core"
)

// Reconciler periodically completes sessions whose scheduled end has passed.
type Reconciler struct {
	svc    Service
	every  time.Duration
	logger core.Logger
}

func NewReconciler(svc Service, every time.Duration, logger core.Logger) *Reconciler {
	return &Reconciler{
		svc:    svc,
		every:  every,
		logger: logger,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.runOnce(ctx)

	ticker := time.NewTicker(r.every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	count, err := r.svc.ReconcileExpired(ctx)
	if err != nil {
		r.logger.Error(fmt.Sprintf("reconciling expired sessions: %v", err), err)
		return
	}
	if count > 0 {
		r.logger.Info(fmt.Sprintf("reconciled %d expired session(s)", count))
	}
}
