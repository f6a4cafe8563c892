package storage

// OpenMemory opens a migrated in-memory cache. Other packages use it in
// tests; the data disappears when the service is closed.
func OpenMemory() (*Service, error) {
	db, err := Open(DefaultConfig(":memory:"))
	if err != nil {
		return nil, err
	}
	return NewService(db), nil
}
