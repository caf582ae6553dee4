package server

import (
	"context"
	"errors"

	"github.com/PavelAgarkov/lease-lock/leasestore"
	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type ReadinessSetter interface {
	Set(ctx context.Context, ready bool) error
}

// HealthProbe проверяет хранилище аренд и раздаёт результат в readiness и gRPC health.
type HealthProbe struct {
	pinger  leasestore.Pinger
	barrier ReadinessSetter
	health  *health.Server
	service string
}

func NewHealthProbe(pinger leasestore.Pinger, barrier ReadinessSetter, hs *health.Server, service string) *HealthProbe {
	return &HealthProbe{
		pinger:  pinger,
		barrier: barrier,
		health:  hs,
		service: service,
	}
}

// Check подходит как scheduler.JobConfiguration.Func.
func (p *HealthProbe) Check(ctx context.Context) error {
	err := p.pinger.Ping(ctx)

	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		logger.WriteWarnLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "lease store is not reachable",
			Component: "HealthProbe",
			Method:    "Check",
			Error:     err,
		})
	}
	p.health.SetServingStatus("", status)
	if p.service != "" {
		p.health.SetServingStatus(p.service, status)
	}

	if serr := p.barrier.Set(ctx, err == nil); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}
