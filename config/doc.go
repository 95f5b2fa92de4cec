// Package config loads the broker's configuration per spec §6.4, layered
// defaults -> config file -> environment -> flags (the teacher's own
// cli/konf precedence order), and supplements it with the proxy-export
// behavior of the original implementation (landscape/broker/deployment.py)
// that the distilled spec.md narrative dropped.
package config
