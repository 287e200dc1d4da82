// Package logging monta o slog.Logger dos binários e o logger de cada
// componente (scheduler, renderer, tilesurface, api).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configura o logger raiz. Level e Format vêm de flags ou env
// (LOG_LEVEL, LOG_FORMAT); Writer nil usa o stderr.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
	// AddSource inclui arquivo:linha em cada registro.
	AddSource bool
}

// New cria o logger raiz. Format "json" usa JSONHandler; qualquer outro
// valor cai no formato texto.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: ParseLevel(opts.Level), AddSource: opts.AddSource}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		handler = slog.NewJSONHandler(w, ho)
	default:
		handler = slog.NewTextHandler(w, ho)
	}
	return slog.New(handler)
}

// Component devolve o logger de um componente. l nil usa slog.Default(),
// que o binário troca pelo logger raiz no início.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}

// ParseLevel aceita debug, info, warn/warning e error. Valor desconhecido
// vira Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
