package readiness_barrier

import "context"

type ReadinessBarrierInterface interface {
	SendSignalCtx(ctx context.Context, sig toggleSignal) error
	Set(ctx context.Context, ready bool) error
	IsReady() bool
	Start()
	Stop()
}
