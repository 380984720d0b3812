// Package fundsavy wires the fundsavy server together.
//
// Most programs only need this package and the CLI:
//
//	cfg, err := fundsavy.LoadConfig(".")
//	if err != nil {
//	    return err
//	}
//	app, err := fundsavy.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer app.Close()
//	return app.Run(ctx)
//
// The App reads groups from the local db.json (optionally hot reloaded) or
// from an HTTP or S3 source, instruments retrieval with Prometheus and
// OpenTelemetry, and serves the REST API, sign-in endpoints and live group
// screens from package server.
package fundsavy

// Version is the fundsavy version, overridden at build time with
// -ldflags "-X github.com/fundsavy/fundsavy.Version=...".
var Version = "0.1.0-dev"
