// Package resource detects compute hardware and gates processing settings
// against it.
//
// A Prober takes one hardware snapshot per daemon start: GPU-class
// accelerators through the udev device tree (overridable for containers) and
// system memory through sysinfo. The Guard built from that snapshot validates
// every resource-dependent processing setting in one pass, downgrades
// settings the hardware cannot honor instead of failing jobs, and owns the
// singleton GPU lease that serializes accelerator work across jobs.
package resource
