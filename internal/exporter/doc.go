// Package exporter writes patient datasets to downloadable CSV and
// Excel files.
package exporter
