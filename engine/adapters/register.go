// Package adapters holds the concrete Adapter implementations. Importing
// this package for its side effects (see dbaasd's main.go) registers every
// engine with the engine package's registry; nothing else needs to import
// individual adapter files.
package adapters

import "github.com/coralcp/dbaas/engine"

func init() {
	engine.Register(postgresqlAdapter{})
	engine.Register(mysqlAdapter{})
	engine.Register(mongodbAdapter{})
	engine.Register(redisAdapter{})
	engine.Register(cassandraAdapter{})
	engine.Register(elasticsearchAdapter{})
	engine.Register(neo4jAdapter{})
	engine.Register(influxdbAdapter{})
	engine.Register(duckdbAdapter{})
	engine.Register(clickhouseAdapter{})
}
