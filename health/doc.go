// Package health reports whether the runtime's parts are working.
//
// A Monitor tracks named statuses. Parts either push a Status with Update
// or register a Probe that is evaluated on every read:
//
//	monitor := health.NewMonitor()
//	monitor.Register("sheet", health.RunnerProbe(sheet))
//	monitor.Register("nats", health.ConnectionProbe(client))
//	monitor.UpdateHealthy("library", "catalog")
//
// Aggregate and Monitor.AggregateHealth roll statuses up to the worst state
// found: any unhealthy part makes the whole unhealthy, otherwise any degraded
// part makes it degraded.
//
// Handler serves the aggregate as JSON and answers 503 while unhealthy.
// Messages built with FromError have addresses, paths and credentials
// masked before they are exposed.
package health
