// Package batch runs one tool operation over several IDs and reports
// per-item outcomes, so a partial failure does not hide the items that
// succeeded.
package batch
