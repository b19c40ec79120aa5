// Package helper provides testing utilities for the data layer and the versioning engine.
//
// It contains sqlite-backed database setup, the fixture entities shared across test suites,
// a slog handler spy for capturing and validating log output, and spies for the
// metrics and tracing collector interfaces.
package helper
