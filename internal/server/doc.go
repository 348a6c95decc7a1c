/*
Package server provides HTTP/HTTPS server lifecycle management: non-blocking
startup, graceful shutdown, and OS signal handling.

# Overview

Manager wraps net/http.Server and unifies listening, serving, shutdown, and
error propagation. It supports both plain HTTP and TLS startup, with built-in
SIGINT/SIGTERM handling suited to production graceful-stop requirements.

# Core types

  - Manager: owns the http.Server and net.Listener plus an asynchronous
    error channel, and exposes Start/StartTLS/Shutdown/WaitForShutdown
    lifecycle methods.
  - Config: listen address, read/write timeouts, idle timeout, max header
    size, and shutdown timeout.

# Capabilities

  - Non-blocking startup: Start/StartTLS run the server on a background
    goroutine; the caller never blocks.
  - Graceful shutdown: Shutdown drains in-flight requests and releases
    connections within the configured timeout.
  - Signal handling: WaitForShutdown listens for SIGINT/SIGTERM and triggers
    graceful shutdown automatically on receipt.
  - Error propagation: Errors() returns the async error channel so callers
    can monitor server failures.
  - TLS support: StartTLS accepts a certificate and key file.
  - Status queries: IsRunning/Addr report the running state and listen
    address.
*/
package server
