// Package logger wraps zap with a console encoder and context helpers.
//
// A logger is built once by the binary with New and attached to the root
// context with ToContext; every component pulls it back out with
// FromContext, optionally scoped with WithName or WithKV.
package logger
