// Package hand defines the contract between the blocking session facade and
// the asynchronous controllers that drive pneumatic-muscle hands.
//
// This package implements the shared device plumbing with support for:
//   - Controller lifecycle management (connect, disconnect, reconnect)
//   - Identity and calibration reporting (muscle order, joints, IMUs)
//   - Pressure command and telemetry readback contracts
//   - Real-time telemetry streaming with multiple delivery patterns
//   - Thread-safe concurrent operations with mutex protection
//   - Object pooling for high-performance telemetry handling
package hand
