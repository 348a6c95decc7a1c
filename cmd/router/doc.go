// Command router runs the enterprise tool router: the HTTP gateway
// that takes a natural-language or raw-SQL query, plans and validates
// it, executes it against the relational warehouse, and returns a
// structured result.
//
// Usage:
//
//	router serve                       start the HTTP and metrics servers
//	router serve --config config.yaml  start with a specific config file
//	router migrate                     apply pending schema migrations and exit
//	router version                     print version information
//	router health                      check a running server's /health endpoint
package main
