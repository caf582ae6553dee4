package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PavelAgarkov/lease-lock/dlock"
	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
)

const AuditLockKey = "inventory:audit"

type AuditReport struct {
	Stock   map[string]int64
	Missing []string
}

// Audit снимает остатки products под общей блокировкой, чтобы из нескольких
// экземпляров отчёт за тик писал только один. Аренда не освобождается после
// чтения и живёт hold, поэтому экземпляр, проснувшийся на том же тике позже,
// получает ok == false. hold берут чуть меньше периода расписания.
func (s *Service) Audit(ctx context.Context, products []string, hold time.Duration) (report AuditReport, ok bool, err error) {
	h, err := s.locker.Acquire(ctx, AuditLockKey, hold)
	if errors.Is(err, dlock.ErrLockContended) {
		logger.WriteDebugLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "audit for this tick is already done by another instance",
			Component: "inventory",
			Method:    "Audit",
			Key:       AuditLockKey,
		})
		return AuditReport{}, false, nil
	}
	if err != nil {
		return AuditReport{}, false, err
	}

	report = AuditReport{Stock: make(map[string]int64, len(products))}
	for _, product := range products {
		qty, err := s.Stock(ctx, product)
		if errors.Is(err, ErrStockNotFound) {
			report.Missing = append(report.Missing, product)
			continue
		}
		if err != nil {
			// неудачный тик отпускаем, чтобы другой экземпляр мог повторить
			return AuditReport{}, false, errors.Join(
				fmt.Errorf("inventory: audit %q: %w", product, err),
				h.Release(context.WithoutCancel(ctx)),
			)
		}
		report.Stock[product] = qty
	}
	h.Detach(ctx)

	logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "stock audit",
		Component: "inventory",
		Method:    "Audit",
		Result:    report.Stock,
		Args:      report.Missing,
	})
	return report, true, nil
}
