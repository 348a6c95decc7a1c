// Package tlsutil provides centralized TLS configuration, giving HTTP
// clients, servers, and Redis connections a hardened TLS setup (TLS 1.2+,
// AEAD cipher suites only).
package tlsutil
