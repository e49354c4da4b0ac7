// Package captioner owns the captioning model for the life of the process:
// it loads the model once on first use and serves every caption request
// against that single instance. It is structured into small files by concern:
//
//   - cache.go: Cache type, EnsureLoaded and the Empty/Loading/Ready gate.
//   - config.go: Config and package defaults; FromConfig wires real parts.
//   - loader.go: Loader turning a resolved folder into a Captioner.
//   - caption.go: Caption and CaptionBatch.
//   - admission.go: bounded queue and in-flight slots.
//   - errors.go: LoadError, backpressure and IsX helpers.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - status.go: Snapshot and StatusResponse reporting.
//   - metrics.go: Prometheus collectors.
//
// External packages use New/FromConfig, EnsureLoaded, Caption, CaptionBatch,
// Ready, Status and Close.
package captioner
