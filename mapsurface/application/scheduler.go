package application

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"meshboard-maps/internal/logging"
	"meshboard-maps/mapsurface/domain"
)

const (
	// DefaultMaxInstances é o teto de superfícies vivas simultâneas.
	DefaultMaxInstances = 3

	// DesktopPriority é a prioridade do mapa interativo único do desktop.
	DesktopPriority = 100
)

// SchedulerOptions configura o Scheduler.
type SchedulerOptions struct {
	// MaxInstances <= 0 usa DefaultMaxInstances.
	MaxInstances int

	// ResourceConstrained diz se o host sofre com contextos GPU escassos
	// (layout de coluna única / mobile). Só nesse caso o teto é aplicado;
	// caso contrário toda requisição é admitida na hora.
	ResourceConstrained bool

	// Stats é opcional (best-effort).
	Stats  domain.StatsStore
	Logger *slog.Logger
}

type activeSlot struct {
	priority   int
	instanceID uint64
}

// Scheduler controla a admissão de superfícies de mapa interativas (caras,
// com contexto GPU) num pool limitado, com preempção por prioridade.
//
// Um único mutex protege slots, fila de pendentes e a tabela do desktop.
// Liberação, preempção e drenagem da fila acontecem na mesma seção crítica:
// uma vaga liberada é reatribuída ao pendente de maior prioridade antes que
// qualquer outra operação do agendador possa intercalar.
//
// desktopMu serializa as trocas do mapa interativo do desktop inteiras
// (callback, liberação e concessão); é sempre adquirido antes de mu.
type Scheduler struct {
	mu        sync.Mutex
	desktopMu sync.Mutex

	maxInstances int
	needsControl bool

	active      map[domain.OwnerID]*activeSlot
	pending     pendingHeap
	instanceSeq uint64
	pendingSeq  uint64

	desktopOwner     domain.OwnerID
	desktopCallbacks map[domain.OwnerID]func()

	stats  domain.StatsStore
	logger *slog.Logger
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.MaxInstances <= 0 {
		opts.MaxInstances = DefaultMaxInstances
	}
	return &Scheduler{
		maxInstances:     opts.MaxInstances,
		needsControl:     opts.ResourceConstrained,
		active:           make(map[domain.OwnerID]*activeSlot),
		desktopCallbacks: make(map[domain.OwnerID]func()),
		stats:            opts.Stats,
		logger:           logging.Component(opts.Logger, "scheduler"),
	}
}

// RequestInstance pede uma superfície viva para owner.
//
// O canal retornado recebe exatamente um Outcome: na hora, se houver vaga
// (ou se o host não precisa de controle); mais tarde, quando a fila for
// drenada; ou Denied, se o pedido for cancelado. Um pedido que não cabe e
// não consegue preemptar ninguém fica pendente sem prazo.
//
// Preempção: se o slot ativo de menor prioridade (empate: o mais antigo) tem
// prioridade estritamente menor, ele é revogado; o dono revogado não é
// avisado e deve perceber via IsActive. A vaga liberada vai para o pendente
// de maior prioridade, normalmente este pedido.
func (s *Scheduler) RequestInstance(owner domain.OwnerID, priority int) <-chan domain.Outcome {
	result := make(chan domain.Outcome, 1)

	var j journal
	s.mu.Lock()
	s.request(owner, priority, result, &j)
	s.mu.Unlock()

	s.record(j)
	return result
}

// AwaitInstance é RequestInstance bloqueante. Se ctx encerrar antes da
// concessão, o pedido pendente é cancelado e o retorno é Denied; uma
// concessão que chegue junto com o cancelamento é devolvida ao pool.
func (s *Scheduler) AwaitInstance(ctx context.Context, owner domain.OwnerID, priority int) domain.Outcome {
	result := s.RequestInstance(owner, priority)

	select {
	case out := <-result:
		return out
	default:
	}

	select {
	case out := <-result:
		return out
	case <-ctx.Done():
	}

	s.CancelRequest(owner)
	if out := <-result; out.Allowed {
		s.ReleaseInstance(owner)
	}
	return domain.Denied
}

func (s *Scheduler) request(owner domain.OwnerID, priority int, result chan domain.Outcome, j *journal) {
	if slot, ok := s.active[owner]; ok {
		slot.priority = priority
		result <- domain.Outcome{Allowed: true, InstanceID: slot.instanceID}
		return
	}

	if s.hasRoom() {
		result <- s.grant(owner, priority, j)
		return
	}

	// um owner tem no máximo um pedido na fila
	for _, old := range s.pending.removeOwner(owner) {
		old.result <- domain.Denied
	}

	s.pendingSeq++
	heap.Push(&s.pending, &pendingRequest{
		owner:    owner,
		priority: priority,
		seq:      s.pendingSeq,
		result:   result,
	})
	j.add(domain.EventQueued, owner, priority)

	victim, victimSlot, ok := s.lowestActive()
	if !ok || victimSlot.priority >= priority {
		return
	}

	delete(s.active, victim)
	j.add(domain.EventPreempted, victim, victimSlot.priority)
	s.drain(j)
}

// ReleaseInstance devolve a superfície de owner (idempotente) e drena a fila.
func (s *Scheduler) ReleaseInstance(owner domain.OwnerID) {
	var j journal
	s.mu.Lock()
	if s.release(owner, &j) {
		s.drain(&j)
	}
	s.mu.Unlock()

	s.record(j)
}

// CancelRequest remove os pedidos pendentes de owner, resolvendo-os com
// Denied. Retorna quantos foram removidos.
func (s *Scheduler) CancelRequest(owner domain.OwnerID) int {
	var j journal
	s.mu.Lock()
	removed := s.pending.removeOwner(owner)
	for _, req := range removed {
		req.result <- domain.Denied
		j.add(domain.EventCancelled, owner, req.priority)
	}
	s.mu.Unlock()

	s.record(j)
	return len(removed)
}

// UpdatePriority altera a prioridade de um slot vivo. Não mexe em pedidos
// pendentes e não dispara preempção: só vale na próxima decisão de admissão.
func (s *Scheduler) UpdatePriority(owner domain.OwnerID, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.active[owner]; ok {
		slot.priority = priority
	}
}

func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) IsActive(owner domain.OwnerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[owner]
	return ok
}

func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func (s *Scheduler) NeedsControl() bool { return s.needsControl }
func (s *Scheduler) MaxInstances() int  { return s.maxInstances }

// Slots retorna um snapshot dos slots vivos, em ordem de concessão.
func (s *Scheduler) Slots() []domain.Slot {
	s.mu.Lock()
	out := make([]domain.Slot, 0, len(s.active))
	for owner, slot := range s.active {
		out = append(out, domain.Slot{Owner: owner, Priority: slot.priority, InstanceID: slot.instanceID})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// RequestDesktopInteractiveMap garante que só um widget seja o mapa
// interativo do desktop. O detentor anterior recebe seu callback (volta para
// a imagem estática) e perde o slot antes de owner receber um slot com
// DesktopPriority.
//
// Em hosts com recursos limitados não faz nada: lá quem manda é o teto.
// O callback não pode chamar RequestDesktopInteractiveMap (deadlock); as
// demais operações do agendador são permitidas.
func (s *Scheduler) RequestDesktopInteractiveMap(owner domain.OwnerID) {
	if s.needsControl {
		return
	}

	s.desktopMu.Lock()
	defer s.desktopMu.Unlock()

	s.mu.Lock()
	prev := s.desktopOwner
	var revert func()
	if prev != "" && prev != owner {
		revert = s.desktopCallbacks[prev]
	}
	s.mu.Unlock()

	// fora do lock: o callback pode chamar de volta o agendador
	if revert != nil {
		revert()
	}

	var j journal
	s.mu.Lock()
	if prev != "" && prev != owner && s.release(prev, &j) {
		s.drain(&j)
	}
	s.desktopOwner = owner
	if slot, ok := s.active[owner]; ok {
		slot.priority = DesktopPriority
	} else {
		s.grant(owner, DesktopPriority, &j)
	}
	j.add(domain.EventDesktop, owner, DesktopPriority)
	s.mu.Unlock()

	s.record(j)
}

// DesktopOwner retorna o widget que hoje é o mapa interativo do desktop.
func (s *Scheduler) DesktopOwner() (domain.OwnerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desktopOwner, s.desktopOwner != ""
}

func (s *Scheduler) RegisterDesktopCallback(owner domain.OwnerID, revert func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desktopCallbacks[owner] = revert
}

func (s *Scheduler) UnregisterDesktopCallback(owner domain.OwnerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.desktopCallbacks, owner)
	if s.desktopOwner == owner {
		s.desktopOwner = ""
	}
}

// --- helpers (chamados com s.mu travado) ---

func (s *Scheduler) hasRoom() bool {
	return !s.needsControl || len(s.active) < s.maxInstances
}

func (s *Scheduler) grant(owner domain.OwnerID, priority int, j *journal) domain.Outcome {
	s.instanceSeq++
	s.active[owner] = &activeSlot{priority: priority, instanceID: s.instanceSeq}
	j.add(domain.EventGranted, owner, priority)
	return domain.Outcome{Allowed: true, InstanceID: s.instanceSeq}
}

func (s *Scheduler) release(owner domain.OwnerID, j *journal) bool {
	slot, ok := s.active[owner]
	if !ok {
		return false
	}
	delete(s.active, owner)
	j.add(domain.EventReleased, owner, slot.priority)
	return true
}

// drain concede vagas livres aos pendentes, maior prioridade primeiro.
func (s *Scheduler) drain(j *journal) {
	for s.pending.Len() > 0 && s.hasRoom() {
		req := heap.Pop(&s.pending).(*pendingRequest)
		if slot, ok := s.active[req.owner]; ok {
			req.result <- domain.Outcome{Allowed: true, InstanceID: slot.instanceID}
			continue
		}
		req.result <- s.grant(req.owner, req.priority, j)
	}
}

// lowestActive acha o slot de menor prioridade; empate vai para o mais antigo.
func (s *Scheduler) lowestActive() (domain.OwnerID, *activeSlot, bool) {
	var (
		owner  domain.OwnerID
		lowest *activeSlot
	)
	for o, slot := range s.active {
		if lowest == nil ||
			slot.priority < lowest.priority ||
			(slot.priority == lowest.priority && slot.instanceID < lowest.instanceID) {
			owner, lowest = o, slot
		}
	}
	return owner, lowest, lowest != nil
}

// journal acumula eventos durante a seção crítica; são gravados depois.
type journal []domain.StatsEvent

func (j *journal) add(kind domain.EventKind, owner domain.OwnerID, priority int) {
	*j = append(*j, domain.StatsEvent{Kind: kind, Owner: owner, Priority: priority, At: time.Now()})
}

func (s *Scheduler) record(j journal) {
	for _, ev := range j {
		switch ev.Kind {
		case domain.EventPreempted:
			s.logger.Info("instance preempted", "owner", ev.Owner, "priority", ev.Priority)
		default:
			s.logger.Debug("instance "+string(ev.Kind), "owner", ev.Owner, "priority", ev.Priority)
		}

		if s.stats == nil {
			continue
		}
		if err := s.stats.Record(context.Background(), ev); err != nil {
			s.logger.Warn("stats record failed", "kind", ev.Kind, "error", err)
		}
	}
}
