// Package config loads the relay configuration from the `relay:` section of
// a YAML file.
//
// Config fields:
//   - SocketHostPort: WebSocket relay bind address (default 127.0.0.1:9001)
//   - AssetHostPort: static assets, /api/v1/status and /metrics (default 127.0.0.1:8000)
//   - AssetDir: serve the viewer from disk instead of the embedded bundle
//   - LogLevel: debug|info|warn|error, reloaded live by Watch
//   - Output: sink for inbound viewer text frames: discard|log|stdout
//   - Queue: capacity (5), policy (block_then_drop), block_timeout (50ms)
//   - Connection: send_buffer (64), write_timeout (10s), read_limit (64KiB), max_clients
//   - Input: exit_on_eof
//
// Load(path) applies defaults before unmarshalling, then validates.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. A failed reload keeps the previous
// config.
package config
