/*
Package batcher turns unconfigured components into sessions.

Each cycle the batcher lists enabled components whose aggregated status
is pending or failed, drops any that have exhausted their retry budget
or still reference a live session, and buckets the rest by desired
configuration. A bucket becomes a session when it reaches the configured
batch size or has waited out the batch window, whichever comes first.
All tunables (check interval, batch size, batch window, default retry
policy) come from the options store and are re-read every cycle.
*/
package batcher
