// Package cli implements the restic-orchestrator command-line interface.
//
// # Command Structure
//
// The root command runs a backup when called without a subcommand:
//
//	restic-orchestrator            - Back up every configured host
//	restic-orchestrator backup     - Same, spelled out
//	restic-orchestrator init       - Create the restic repository of every host
//	restic-orchestrator check      - Local preflight: ssh binary, destinations, known_hosts
//	restic-orchestrator schema     - Print the config JSON Schema
//	restic-orchestrator history    - List recorded runs, or the steps of one run
//
// # Settings
//
// Global flags are bound into viper, so every flag can also come from the
// environment with the RESTIC_ORCHESTRATOR_ prefix, e.g.
// RESTIC_ORCHESTRATOR_ON_FAILURE=stop. Flags win over the environment.
//
// # Exit Codes
//
// Config problems exit with their dedicated return code (see
// errors.ReturnCode). A run cut short by a spawn error exits with
// GenericError. Failing steps are reported in the summary and exit 0, or
// GenericError with --strict.
package cli
