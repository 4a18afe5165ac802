// Package application provides application initialization and dependency wiring.
// It turns the applied production settings into the asset pipeline, static file
// server, attachment service, error reporter, router and HTTP server, keeping the
// main package focused on CLI parsing and orchestration.
package application
