// Package engine provides the core types shared by the gpuprep provisioning components.
//
// # Overview
//
// A provisioning session walks a fixed sequence of phases:
//
//  1. Init - validate the entry point and load the manifest
//  2. EnsureDeps - make the auxiliary Python libraries importable
//  3. ProbeEnvironment - gate on the exact interpreter version
//  4. EnsureToolkit - download and install the CUDA toolkit when absent
//  5. Provision - run the ordered package-manager steps
//  6. OptionalConvert - convert a model to an engine file on request
//  7. Report - print the error tally and persist the session
//
// A relaunch may happen after EnsureDeps or EnsureToolkit, at most once per session.
//
// # Core Domain Types
//
//   - ExecutionState: restart and error bookkeeping threaded through the phases
//   - CommandSpec: an immutable external command line
//   - Dependency: an auxiliary library with its import name
//   - VersionRequirement: an expected interpreter or toolkit version
//   - StepOutcome: the recorded result of one step
//
// # Errors
//
// Components classify their failures with ProvisionError:
//
//   - fatal: provisioning stops (wrong entry point, interpreter mismatch)
//   - logged: counted and recorded, the run continues
//   - silent: a best-effort capability is missing, nothing is recorded
//
// Lower-level components never abort the run themselves. They report outcomes
// and the orchestrator decides whether to continue, relaunch or halt.
package engine
