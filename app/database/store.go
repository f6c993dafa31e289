package database

// Store groups the repositories one process works with.
type Store struct {
	Seen     SeenRepository
	Listings ListingRepository
	Settings SettingsRepository
	Cycles   CycleRepository

	close func() error
}

// NewStore builds the SQLite-backed repositories on top of an open database.
func NewStore(db *DB) (*Store, error) {
	seen, err := NewSeenRepository(db)
	if err != nil {
		return nil, err
	}
	return &Store{
		Seen:     seen,
		Listings: NewListingRepository(db),
		Settings: NewSettingsRepository(db),
		Cycles:   NewCycleRepository(db),
		close: func() error {
			seen.Close()
			return db.Close()
		},
	}, nil
}

func NewMemoryBackedStore() *Store {
	m := NewMemoryStore()
	return &Store{Seen: m, Listings: m, Settings: m, Cycles: m}
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
