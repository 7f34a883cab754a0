package _202610011415_cacheEntryKindIndex

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

type Migration struct {
}

// Up adds the entry kind (the key prefix before the first underscore) so stores can be
// inspected per kind without scanning every key.
func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`alter table cache_entries add column if not exists kind varchar not null default ''`,
		`update cache_entries set kind = split_part(key, '_', 1) where kind = ''`,
		`create index if not exists idx_cache_entries_kind on cache_entries (kind)`,
	}

	for _, query := range queries {
		if res := grm.Exec(query); res.Error != nil {
			fmt.Printf("Failed to execute query: %s\n", query)
			return res.Error
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610011415_cacheEntryKindIndex"
}
