/*
Package events provides an in-process pub/sub broker for state change
notifications.

Mutating operations publish component, configuration, source, and session
lifecycle events. Delivery is best-effort end to end: Publish drops when
the broker buffer is full, and broadcast skips subscribers whose buffers
are full. A slow consumer can therefore never stall or fail a mutation.
*/
package events
