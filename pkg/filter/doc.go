/*
Package filter implements record filtering and opaque paging cursors.

Filters are AND-combined criteria evaluated in memory against one record
at a time, so list operations can apply them during a cursor scan without
materializing the full record set. Paging cursors carry the last-seen key
plus a fingerprint of the filter they were issued with; resuming a page
walk with a different filter fails with ErrInvalidCursor instead of
silently returning a wrong page.
*/
package filter
