// Package config loads fundsavy's configuration.
//
// A configuration file is named fundsavy.json, fundsavy.yaml, fundsavy.yml or
// fundsavy.toml. Durations are written as strings:
//
//	{
//	  "server": {"addr": "localhost:8080"},
//	  "groups": {"db": "db.json", "watch": true, "timeout": "10s"},
//	  "auth": {"sessionTTL": "24h"}
//	}
//
// Missing fields take the defaults of New. Environment variables
// (FUNDSAVY_ADDR, FUNDSAVY_GROUPS_SOURCE, FUNDSAVY_LOG_LEVEL) override the
// file through ApplyEnv.
package config
