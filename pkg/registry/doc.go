/*
Package registry manages the configuration and source catalogs.

Configurations are validated on write: every layer names exactly one
content reference (clone URL or registered source), at most one git ref,
and no two layers share a (content, playbook) pair. Deletes are soft:
the record moves to a single-slot history bucket and can be restored.
A delete is refused while components or configuration layers still
reference the record.

Sources carry credentials only as a reference into the secret store. Raw
credentials supplied at create time are exchanged immediately via
pkg/secrets; rotation reuses the existing reference. Names may arrive
percent-encoded (git URLs used as names) and are decoded on every path.
*/
package registry
