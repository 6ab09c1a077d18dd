// Package store selects a storage backend by driver name.
package store

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomrelay/internal/chat"
	"github.com/Tyrowin/roomrelay/internal/store/badgerstore"
	"github.com/Tyrowin/roomrelay/internal/store/memstore"
	"github.com/Tyrowin/roomrelay/internal/store/sqlstore"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Open returns the backend for driver. path is the badger directory or the
// sqlite DSN and is ignored by the memory driver.
func Open(driver, path string, log zerolog.Logger) (chat.Store, error) {
	log = log.With().Str("component", "store").Str("driver", driver).Logger()

	switch driver {
	case DriverMemory, "":
		return memstore.New(), nil
	case DriverBadger:
		return badgerstore.Open(path, log)
	case DriverSQLite:
		return sqlstore.Open(path, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
