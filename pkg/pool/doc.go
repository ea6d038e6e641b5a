// Package pool wraps a database connection pool with credential checks and
// continuously collected statistics.
//
// Architecture
//
// A Wrapper sits between application code and a Driver. The driver decides
// how physical connections are kept; the wrapper decides who may check one
// out and records what happens:
//
//   - Wrapper: authenticates callers, checks connections out of the driver,
//     validates them and reports statistics
//   - Driver: the concrete pool, registered by name (see pkg/pool/channel)
//   - DataSource: the only way a driver opens physical connections; it
//     counts every connection created and every connection closed
//   - Counter: atomic counters, the check-out time histogram and the
//     occupancy sampler
//
// Statistics
//
// Counters are plain atomic increments so the checkout path never waits for
// a statistics reader. Two bounded structures sit beside them, each behind
// its own mutex:
//
//   - the last 10,000 check-out times, consumed by every Statistics call
//   - a ring of pre-allocated PoolState samples written by a background
//     sampler while snapshot collection is on
//
// Per-second rates are measured against the previous Statistics call, so
// frequent polling gives noisy rates and two calls in quick succession
// report a rate near zero for the second one.
//
// Usage
//
//	import _ "github.com/ajitpratap0/dbpool/pkg/pool/channel"
//
//	w, err := pool.New(ctx, factory, auth.NewUser("admin", "secret"), *config.NewPoolConfig())
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	conn, err := w.Connection(ctx, auth.NewUser("admin", "secret"))
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	stats := w.Statistics(0)
//	fmt.Println(stats.Requests, stats.AverageTime)
package pool
