// Package cmd provides the command-line interface for prmake.
//
// The root command behaves like make: it regenerates every makefile whose
// prfile or included files changed, then runs make with the remaining
// arguments. Options prmake understands start with "--pr" (plus --make and
// -f/--file/--makefile); everything else is forwarded to make untouched.
//
// # Available Commands
//
//   - status: Report whether each generated makefile is up to date
//   - watch: Rebuild generated makefiles when their sources change
//   - version: Show version information
//
// # Command Examples
//
//	// Rebuild Makefile from Makefile.pr, then run "make -j4 all"
//	prmake -j4 all
//
//	// Always rebuild, keeping the temporary block files
//	prmake --prforce --prkeep
//
//	// Status as JSON
//	prmake status --format json
//
//	// Run a make target that shares a name with a subcommand
//	prmake -- status
//
// # Configuration Integration
//
// Settings come from, highest priority first:
//
//  1. Command-line options
//  2. Environment variables (PRMAKE_*)
//  3. Configuration file (.prmake.yml or --prconfig)
//  4. Default values
//
// # Exit Status
//
// When make runs, prmake exits with make's status. Any failure before make
// runs exits with status 1 and leaves existing makefiles untouched.
package cmd
