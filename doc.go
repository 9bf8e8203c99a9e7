// Package scenario enumerates and executes combinations of migrations
// against a simulated deployment world. Migrations are discovered through
// registered sources (in code or manifest files), enumerated into ordered
// combinations, built into independent solutions and driven through a
// prepare, enacted, enact lifecycle with a later verification phase.
// Enactments can optionally be recorded in an SQLite or Postgres ledger.
package scenario
