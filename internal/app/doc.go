// Package app holds the use cases behind the HTTP API and MQTT ingestion.
//
// Service reads and writes through the domain ports only, so the same code
// runs on Postgres/Redis in production and on the in-memory adapters in tests.
package app
