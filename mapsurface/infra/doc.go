// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - MemoryImageCache / RedisImageCache: cache de snapshots PNG
//   - MemoryStatsStore / RedisStatsStore: estatísticas de admissão
//   - LimiterStore: token bucket por cliente usando golang.org/x/time/rate
//   - NewChanPool: semáforo simples para limitar snapshots simultâneos
//   - HTTPConfigSource: configuração de tilesets e estilo do servidor de tiles
//
// A superfície raster de tiles fica no subpacote tilesurface.
package infra
