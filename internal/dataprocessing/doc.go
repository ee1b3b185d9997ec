// Package dataprocessing holds the pure tabular transforms behind the
// dashboard: decoding uploaded clinic files into patient records,
// filling missing values with documented defaults, and grouping records
// into the views the charts consume. Every transform is a pure function
// of its input; rendering and transport stay out of this package so the
// pipeline is testable on its own.
package dataprocessing
