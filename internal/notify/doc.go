// Package notify holds the alert sinks: an audio player that shells out to
// the system sound player, an MQTT publisher, a log-only sink and a fan-out
// that combines them.
package notify
