// Package internal contains the core implementation packages for prmake.
//
// # Package Organization
//
//   - cliargs: Splitting the command line into prmake options and make arguments
//   - config: Configuration loading and validation
//   - directive: Recognising #begincode, #includecode and #endcode lines
//   - discovery: Choosing prfile/makefile pairs
//   - errors: Structured error types and exit codes
//   - executor: Running make on the generated makefiles
//   - expander: Turning a prfile into makefile text
//   - logging: Structured logging
//   - provenance: Header, checksum, staleness and safe publishing
//   - runner: Executing block commands
//   - services: Build and status operations used by the commands
//   - testutils: Helpers shared by tests
//   - version: Build information
//   - watcher: File system monitoring with debouncing
package internal
