// Package reload implements the live-reload resolution engine.
//
// This package contains:
//   - Member descriptors and the MemberKey identity used across versions
//   - Type deltas and the instance layout compatibility check
//   - The binary type image codec
//   - Reloadable types with an atomically published current version
//   - Invokers that re-dispatch to the live version on every call
//   - Declared, public and collect-all member lookups
//   - Type registries, the Context that owns them, and the liveness sweeper
package reload
