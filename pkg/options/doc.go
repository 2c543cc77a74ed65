/*
Package options manages the single service-wide options record.

The record lives under a fixed key in the store and is cached in a
process-wide snapshot. First access initializes the cache exactly once
(missing fields are seeded with defaults and written back); later reads
are lock-free. Reload and Update refresh the snapshot explicitly, and
changes to logging_level are applied to the global logger immediately.
*/
package options
