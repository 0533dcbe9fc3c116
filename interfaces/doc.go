// Package interfaces defines the core types and error taxonomy for the CVM
// deployment engine, separating the domain vocabulary from implementations.
//
// The package provides the data model shared by all pipeline stages:
//
// # Release Types
//
// Release: The versioned record of a deployable artifact (image digest,
// canonical registry name, public and encrypted configuration) submitted
// on-chain. A Release is immutable once built and consumed exactly once by
// the batch planner.
//
// Artifact: A single deployable image reference; a Release carries exactly
// one.
//
// # Batch Types
//
// Execution: One on-chain call (target, value, calldata). BatchPlan is an
// ordered list of Executions submitted atomically in one transaction; the
// order is semantically load-bearing (creation and upgrade calls must precede
// permission calls).
//
// DelegationAuthorization: A signed tuple permitting an account to adopt
// delegate code for batched self-calls, attached to the batch transaction
// only when the account is not already delegated.
//
// GasEstimate: A conservative fee ceiling for a prepared batch, including a
// human-readable maximum cost.
//
// # Lifecycle Types
//
// AppLifecycleState: The remote platform's reported status for a deployed
// application. The engine never owns this state; it only observes it via
// polling.
//
// # Error Taxonomy
//
// ValidationError, PlatformMismatchError, NetworkError, ContractRevertError,
// LifecycleFailure, and AuthorizationError classify every failure the engine
// surfaces. Local recovery is limited to HTTP 429 backoff and transient
// status-poll errors; everything else propagates to the caller with context.
package interfaces
