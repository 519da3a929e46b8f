// Package internal contains the core implementation packages for assetkit.
//
// # Package Organization
//
//   - source: module enumeration, asset kinds and artifact naming
//   - build: stylesheet and script compilers, the build scheduler and metrics
//   - resolver: finds the modules that include a changed partial
//   - dispatch: classifies file changes and schedules the affected modules
//   - watcher: fsnotify watching with per-path debouncing
//   - manifest: content-hash manifest of the dist directory
//   - sizecheck: gzip size budgets and their reports
//   - server: live-reload websocket and Prometheus metrics
//   - config, logging, errors, version: shared infrastructure
//
// # Data Flow
//
//	watcher -> dispatch -> (resolver) -> build.Scheduler -> Compiler -> dist
//	                                           |
//	                                           +-> server (websocket, /metrics)
//
// Modules are enumerated from their globs for every decision. Every
// compilation runs in its own goroutine and at most one build per module
// is in flight.
package internal
