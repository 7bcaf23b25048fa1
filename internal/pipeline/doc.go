// Package pipeline drives the detector: one cycle per captured frame runs
// the change engine, the movement decision and the alert state machine,
// then hands the frame to an optional display.
package pipeline
