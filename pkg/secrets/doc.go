/*
Package secrets exchanges raw source credentials for named references.

Credentials arrive once at source-create time, are sealed with
AES-256-GCM, and land in the store under a generated
"shepherd-source-credentials-<uuid>" name. Source records carry only that
reference; deleting or restoring a source moves the reference around
without ever touching the sealed material.
*/
package secrets
