// Package remote provides the targets the sync engine pushes records to.
//
//   - HTTPClient PUTs each record as JSON to /v1/records/{id}, signing
//     requests with a short-lived device token.
//   - PostgresRemote upserts into a shared table; older versions never
//     overwrite newer ones.
//   - Simulated succeeds with a fixed probability after a delay.
//   - Sink is the server side of HTTPClient, used by tests and by
//     `snipsync sink` for local development.
//
// Every failure, whatever its cause, leaves the record pending for the
// next run.
package remote
