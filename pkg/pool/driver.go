package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/config"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// Driver is a concrete pool implementation. It opens physical connections
// through the DataSource it was built with and decides how they are kept.
//
// Setters validate their argument and return a config error, keeping the
// previous value, when it is out of range.
type Driver interface {
	// FetchConnection checks out a connection, waiting while the pool is
	// exhausted. Closing the returned connection checks it back in.
	FetchConnection(ctx context.Context) (database.Connection, error)

	Available() int
	InUse() int
	Waiting() int
	// Occupancy reads the idle, checked-out and waiting counts at one
	// point in time.
	Occupancy() Occupancy

	MaximumPoolSize() int
	SetMaximumPoolSize(size int) error
	MinimumPoolSize() int
	SetMinimumPoolSize(size int) error
	IdleTimeout() time.Duration
	SetIdleTimeout(d time.Duration) error
	CleanupInterval() time.Duration
	SetCleanupInterval(d time.Duration) error
	MaximumCheckOutTime() time.Duration
	SetMaximumCheckOutTime(d time.Duration) error

	// Close closes every pooled connection. Connections checked out at the
	// time are closed when they are returned.
	Close() error
}

// Discarder is implemented by checked-out connections that can be dropped
// from the pool instead of being returned to it.
type Discarder interface {
	Discard() error
}

// DriverFactory builds a Driver for a pool configuration.
type DriverFactory func(ctx context.Context, source DataSource, cfg config.PoolConfig, logger *zap.Logger) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// RegisterDriver makes a driver available under name. It panics when name
// is taken or factory is nil, so it belongs in an init function.
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if factory == nil {
		panic("pool: RegisterDriver factory is nil")
	}
	if _, exists := drivers[name]; exists {
		panic(fmt.Sprintf("pool: RegisterDriver called twice for driver %s", name))
	}
	drivers[name] = factory
}

// Drivers returns the registered driver names in sorted order
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDriver(name string) (DriverFactory, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, poolerrors.Newf(poolerrors.ErrorTypeConfig, "pool driver %s not found", name).
			WithDetail("registered", Drivers())
	}
	return factory, nil
}
