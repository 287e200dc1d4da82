// Package mapsurface expõe o agendador de superfícies de mapa e o renderer de
// snapshots por HTTP.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem net/http, sem Redis)
//   - geo, pin: geometria Web-Mercator e pintura dos alfinetes
//   - application: Scheduler (admissão com preempção), Renderer (fila serial
//     de snapshots) e SnapshotGate (limites por cliente)
//   - infra: caches, estatísticas, limiters, configuração de tiles e a
//     superfície raster (infra/tilesurface)
//   - mapsurface (este pacote): rotas chi, JSON, PNG e middlewares de limite
//
// Fluxo típico de um widget:
//
//  1. POST /api/map/instances pede uma superfície viva
//  2. Se negado (ou pendente), GET /api/map/snapshot busca a imagem estática
//  3. DELETE /api/map/instances/{owner} quando o widget desmonta
//
// O binário cmd/mapsched monta tudo a partir de variáveis de ambiente.
package mapsurface
