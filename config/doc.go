// Package config loads the farecast YAML configuration, applies FARECAST_*
// environment overrides and validates the result.
//
//	server:
//	  addr: ":5000"
//	model:
//	  store: sqlite
//	  sqlite_path: ./models/bundles.db
//	retrain:
//	  enabled: true
//	  schedule: "0 3 * * *"
package config
