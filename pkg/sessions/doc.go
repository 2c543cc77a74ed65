/*
Package sessions manages the configuration session lifecycle.

A session is created once, with a validated target and an existing
configuration, under a name that must be free; name collisions are
conflicts, never upserts. After creation only the status subtree can
change, and both status (pending, then running, then complete) and succeeded
(none, unknown, false, true, in that order) move strictly forward, so a late or
duplicated status report can never roll a session back.

Creation hands the session to the execution-environment runner on a
separate goroutine; runner failures are logged, not surfaced, and the
session stays pending for a later pickup.
*/
package sessions
