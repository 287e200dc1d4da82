package application

import (
	"context"
	"time"

	"meshboard-maps/mapsurface/domain"
)

// SnapshotGate decide se um pedido de snapshot vindo de um cliente pode seguir
// para o renderer. Cada snapshot não cacheado vira um job na fila serial, então
// há duas barreiras:
//
//   - Decide: token bucket por cliente (rajadas de um mesmo cliente)
//   - Acquire: vagas para pedidos simultâneos esperando a fila (todos os clientes)
//
// Não sabe nada de HTTP; o adapter traduz a decisão para status/headers.
type SnapshotGate struct {
	Limiters   domain.LimiterStore
	RetryAfter time.Duration

	Slots          domain.SlotPool
	AcquireTimeout time.Duration
}

// Decide consulta o limiter do cliente. Sem store, tudo passa.
func (g SnapshotGate) Decide(key domain.Key) domain.Decision {
	if g.Limiters == nil {
		return domain.Decision{Allowed: true}
	}

	lim := g.Limiters.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}

	retry := g.RetryAfter
	if retry <= 0 {
		retry = time.Second
	}
	return domain.Decision{Allowed: false, RetryAfter: retry}
}

// Acquire tenta pegar uma vaga de espera.
//   - AcquireTimeout <= 0: espera até ctx encerrar
//   - AcquireTimeout > 0: desiste depois do timeout
//
// Com ok=false nenhuma vaga foi adquirida e release é nil.
func (g SnapshotGate) Acquire(ctx context.Context) (release func(), ok bool) {
	if g.Slots == nil {
		return func() {}, true
	}
	if g.AcquireTimeout <= 0 {
		return g.Slots.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, g.AcquireTimeout)
	defer cancel()
	return g.Slots.Acquire(acqCtx)
}
