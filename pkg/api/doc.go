/*
Package api serves the HTTP surface over gin.

Two versions are mounted side by side. /v3 is the current surface:
snake_case payloads, object list bodies carrying an opaque "next"
cursor, 201 on session creation, and per-record outcomes on bulk
mutations. /v2 is the frozen legacy surface: camelCase payloads, bare
array list bodies that fail with 400 once a result set exceeds one
page, 200 on session creation, and all-or-nothing bulk component
patches.

Handlers translate between wire shapes and the domain packages; no
business rule lives here. Errors map onto problem-detail bodies through
a single writeError switch.
*/
package api
