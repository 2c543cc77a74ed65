/*
Package storage provides persistent state storage for Shepherd using BoltDB.

All fleet state lives in a single BoltDB file with one bucket per entity
kind (components, configurations and their history, sources and their
history, sessions, options, secrets). Records are stored as JSON values
keyed by ID or name, which keeps the database inspectable with standard
bolt tooling.

# Concurrency Model

BoltDB gives single-writer, multi-reader transactions. The Update*
methods run their callback inside one write transaction, so a
read-modify-write of a single record can never interleave with another
writer. Nothing larger than a single record is ever mutated atomically;
bulk operations in higher layers are loops of per-record transactions by
design of the data model.

# Paging

Scan* methods walk keys in lexicographic order starting strictly after a
caller-supplied key and stop at the page limit, reporting whether more
records remain. Callers resume by passing the last key of the previous
page. Scans never load the whole bucket.

# Migration

MigrateComponents upgrades v2-era records (camelCase fields) in place and
is idempotent. The shepherd-migrate command wraps it.
*/
package storage
