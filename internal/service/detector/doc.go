// Package detector wires configuration, logging, the frame source, alert
// sinks, the preview server and the pipeline into the ratnav process.
package detector
