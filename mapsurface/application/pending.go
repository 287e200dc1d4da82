package application

import (
	"container/heap"

	"meshboard-maps/mapsurface/domain"
)

// pendingRequest é um pedido de superfície que não coube no pool.
type pendingRequest struct {
	owner    domain.OwnerID
	priority int
	seq      uint64 // ordem de chegada, desempata prioridades iguais
	result   chan domain.Outcome
}

// pendingHeap implementa heap.Interface. Ordem:
// 1. priority (decrescente)
// 2. seq (crescente): FIFO entre prioridades iguais
type pendingHeap []*pendingRequest

var _ heap.Interface = (*pendingHeap)(nil)

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(*pendingRequest)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	req := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return req
}

// removeOwner tira todos os pedidos do owner e refaz o heap.
// Retorna os pedidos removidos.
func (h *pendingHeap) removeOwner(owner domain.OwnerID) []*pendingRequest {
	var removed []*pendingRequest
	kept := (*h)[:0]
	for _, req := range *h {
		if req.owner == owner {
			removed = append(removed, req)
			continue
		}
		kept = append(kept, req)
	}
	for i := len(kept); i < len(*h); i++ {
		(*h)[i] = nil
	}
	*h = kept
	if len(removed) > 0 {
		heap.Init(h)
	}
	return removed
}
