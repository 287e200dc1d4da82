package domain

import "context"

// ImageCache guarda snapshots já renderizados (PNG) por chave.
//
// Só cresce durante a sessão; nada expira sozinho. Clear é chamado por um
// colaborador externo (ex.: quando o tileset muda).
type ImageCache interface {
	Get(ctx context.Context, key string) (img []byte, ok bool, err error)
	Set(ctx context.Context, key string, img []byte) error
	Clear(ctx context.Context) error
}
