package domain

import (
	"context"
	"errors"
)

// ErrMapDisabled indica que o servidor de tiles respondeu com mapa desligado.
var ErrMapDisabled = errors.New("map disabled")

// Tileset é um conjunto de tiles disponível no servidor.
type Tileset struct {
	Name string `json:"name"`
}

// TilesetConfig é a configuração de mapa já resolvida: qual estilo usar e os
// limites de zoom tirados da primeira fonte do estilo.
type TilesetConfig struct {
	Enabled   bool
	Message   string
	LayerMode string
	Tilesets  []Tileset

	StyleURL string
	TileURL  string
	TileSize int

	MinZoom float64
	MaxZoom float64
}

// ConfigSource busca a configuração de tilesets/estilo de um colaborador
// externo (tipicamente o backend do quadro de notas).
type ConfigSource interface {
	FetchTilesetConfig(ctx context.Context) (TilesetConfig, error)
}
