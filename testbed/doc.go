// Package testbed holds end-to-end scenarios that load the demo extension
// into the in-process host and drive it through the interface table the
// way the engine does.
package testbed
