// Package config loads and watches the exporter configuration file.
//
// Top-level types:
//   - Config{PRTG, Refresh, Scrape, Labels, Converters, Server}
//   - PRTGConfig: url, username, password_env, timeout, paging and fan-out
//     knobs; Passhash() resolves the credential from the environment
//   - RefreshConfig: pause between cycles and the stop timeout
//   - ScrapeConfig: whether /metrics waits for the first snapshot
//   - LabelsConfig: static labels and label names taken from sensor tags
//
// Load(path) reads the YAML file, applies defaults (1000 sensors per page,
// 10 parallel channel requests, 20s pause, port 9705) and validates ranges,
// label names and converter names.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config.
package config
