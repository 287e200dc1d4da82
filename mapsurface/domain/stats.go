package domain

import (
	"context"
	"time"
)

// EventKind é o tipo de decisão de admissão registrada.
type EventKind string

const (
	EventGranted   EventKind = "granted"
	EventQueued    EventKind = "queued"
	EventPreempted EventKind = "preempted"
	EventReleased  EventKind = "released"
	EventCancelled EventKind = "cancelled"
	EventDesktop   EventKind = "desktop"
)

// StatsEvent representa uma decisão do agendador de superfícies.
//
// Observação: cuidado com cardinalidade ao persistir Owner (cada widget gera
// um OwnerID novo); por isso o rastreio por owner é opcional nos stores.
type StatsEvent struct {
	Kind     EventKind
	Owner    OwnerID
	Priority int

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, memória, etc.
// O agendador trata erro como best-effort (nunca afeta a decisão).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
