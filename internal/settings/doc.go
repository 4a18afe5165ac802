// Package settings produces the production Settings value read by every part of the
// host: SSL enforcement, public file server headers, log level and tags, asset pipeline
// flags and the optional error-reporting and attachment sections.
//
// Settings are applied exactly once at boot from an explicit environment map and a set
// of capability flags, then handed to consumers by value. Nothing in this package
// performs I/O.
package settings
