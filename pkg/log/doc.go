// Package log is veilcap's logging seam. Orchestrator and adapter code
// logs through the Logger interface with typed Fields; the CLI plugs in
// the zerolog adapter, tests plug in the noop logger, and embedders can
// bring any implementation of the four level methods.
package log
