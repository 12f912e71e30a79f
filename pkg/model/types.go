package model

// BackendType identifies the storage backend in use.
type BackendType string

const (
	BackendFile   BackendType = "file"
	BackendSQLite BackendType = "sqlite"
)
