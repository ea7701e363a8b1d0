// Package api contains the HTTP handlers, request/response types, and error
// mapping for the task manager's REST surface. Handlers validate input,
// delegate to the service layer, and translate internal errors into sanitized
// HTTP responses.
package api
