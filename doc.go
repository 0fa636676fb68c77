// Package flambe runs evaluation blocks of machine learning experiments.
//
// A Client wires configuration, tracing and scalar logging together and
// builds evaluators and block runners that share them.
//
// # Main Packages
//
// The eval package implements the Evaluator block. Models, datasets,
// samplers and metrics live in the nn, dataset, sampler and metric
// packages; tensor provides the minimal tensor type they exchange.
//
// For tracing, see the trace package. For scalar logging, see the logging
// and store packages.
//
// # Configuration
//
// The client reads configuration from environment variables.
// See [config.FromEnv] for a complete list of supported environment variables.
package flambe
