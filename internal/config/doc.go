// Package config loads and saves the gateway configuration.
//
// # Formats
//
// Files ending in ".toml" are read and written as TOML; anything else is YAML.
// Both formats use the same keys:
//
//	policy: balancer            # listener | balancer
//	server:
//	  host: "0.0.0.0"
//	  port: 10151
//	  random_port_fallback: true
//	  read_timeout: "30s"
//	  accept_timeout: "1s"
//	  task_period: "1m"
//	  backend_timeout: "10s"
//	  http_addr: "127.0.0.1:10153"
//	  web_root: "./web"
//	control:
//	  port: 10152
//	  name: "recgate.Control"
//	  jwt_secret: "${RECGATE_JWT_SECRET}"
//	account:
//	  name: admin
//	  password: "admin"          # plain or bcrypt hash
//	  privileges: 7
//	  cache_ttl: "5m"
//	backends:
//	  - {host: 127.0.0.1, port: 10150, account: admin, password: admin}
//	status:
//	  redis_addr: ""
//	  redis_channel: "recgate:status"
//	logging:
//	  level: info                # debug, info, warn, error
//	  format: text               # text, json
//	metrics:
//	  enabled: true
//	  path: /metrics
//
// # Environment Variable Expansion
//
// ${VAR} references are replaced with the environment value before decoding.
// Save writes the reference back for any field whose value still matches what
// it expanded to, so secrets taken from the environment never land on disk.
//
// # Durations
//
// Duration fields are kept as strings in the file and parsed with
// time.ParseDuration after decoding; the parsed values live in the fields
// without a file tag.
package config
