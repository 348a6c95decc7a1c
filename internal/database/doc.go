// Package database manages the GORM connection pool backing the plan
// history (C7) and audit sink (C9) tables: pool tuning, a background
// health-check loop, and transactional retry with exponential backoff
// on retryable errors (deadlocks, serialization failures, broken
// connections).
package database
