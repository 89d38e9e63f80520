// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces (repositories) defined in the internal/store package.
// It handles the details of database connections, query execution, and data
// mapping between domain entities and database records, and owns the two
// security-sensitive pieces of SQL in the system: the lock-and-skip-locked
// outbox claim and the role-downgraded tenant scope transaction.
package postgres
