// Package store provides job persistence for FlowDecompose.
//
// JobStore keeps the job record (status, progress, result, partial result,
// error) together with ingested assets, generated artifacts and virtual
// motion sub-jobs. Every backend enforces the same rules:
//
//   - status moves queued → running → succeeded|failed and never back
//   - a terminal job is never mutated again (ErrJobTerminal)
//   - SaveResult is the only way to succeed with a result, and writes 100%
//
// Supported backends:
//   - Memory: development and tests (default)
//   - Database: PostgreSQL, MySQL or SQLite through gorm
//   - Redis: JSON records with sorted-set indexes
package store
