package application

import (
	"sort"

	"meshboard-maps/mapsurface/domain"
)

// renderJob é um pedido de snapshot aguardando (ou em) execução.
type renderJob struct {
	id        string
	key       string
	locations []domain.Location
	zoom      float64
	y         float64 // posição do anchor no momento do enfileiramento

	// waiters conta quem ainda espera o resultado; protegido por Renderer.mu
	waiters int

	img  []byte
	done chan struct{}
}

// renderQueue mantém os jobs em ordem crescente de y. A posição é fixada na
// inserção e nunca é recalculada.
type renderQueue []*renderJob

// insert coloca job antes do primeiro job com y estritamente maior; y iguais
// preservam a ordem de chegada.
func (q *renderQueue) insert(job *renderJob) {
	old := *q
	i := sort.Search(len(old), func(i int) bool { return old[i].y > job.y })
	old = append(old, nil)
	copy(old[i+1:], old[i:])
	old[i] = job
	*q = old
}

func (q *renderQueue) pop() *renderJob {
	old := *q
	if len(old) == 0 {
		return nil
	}
	job := old[0]
	old[0] = nil
	*q = old[1:]
	return job
}

func (q renderQueue) Len() int { return len(q) }
