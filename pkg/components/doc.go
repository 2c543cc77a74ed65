/*
Package components implements the component state engine.

A component's stored record holds per-layer results; its status is never
trusted from storage but aggregated on every read and mutation from the
results plus the layers its desired configuration defines (Aggregate).
Patches merge field-by-field: state_append upserts one layer result keyed
by (clone URL, playbook), tags with empty values are pruned, and changing
the desired configuration or clearing state resets the error count.

Bulk operations (PatchMany, DeleteMany, filtered List) walk the keyspace
in cursor pages and apply the filter per record, so memory stays bounded
regardless of fleet size. Each record mutation is a single store write
transaction; bulk mutations make no atomicity promise beyond that, and
report per-record outcomes instead of failing the batch.
*/
package components
