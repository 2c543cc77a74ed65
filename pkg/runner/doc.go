// Package runner defines the narrow trigger interface to the execution
// environment. Shepherd records sessions and hands them off; it never
// tracks the run itself beyond the status patches the runner reports
// back through the API.
package runner
