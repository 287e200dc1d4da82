// Package domain define contratos e tipos de domínio do agendador de
// superfícies de mapa e do renderer de snapshots.
//
// Este pacote não depende de net/http, de Redis nem da superfície concreta.
// A intenção é permitir testes de unidade puros (com superfícies falsas) e
// desacoplar as regras de admissão/renderização dos detalhes de
// infraestrutura.
package domain
