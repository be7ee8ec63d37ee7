// Package testutil provides testing utilities and helpers for tinyweb tests.
//
// This package includes:
// - Assertion utilities
// - Temporary directory roots and zip archive builders
// - Default test configurations
package testutil
