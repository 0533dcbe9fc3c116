// Package onchain plans, prices, and submits the batched transactions that
// deploy and upgrade applications through the app registry contract.
//
// A deploy or upgrade is one transaction addressed to the caller's own
// account (the self-call pattern): the account temporarily adopts batch
// executor delegate code via an EIP-7702 authorization, and the transaction
// calldata encodes the ordered list of registry calls. The package covers:
//
//   - Planner: turns a release plus visibility deltas into an ordered
//     BatchPlan (creation/upgrade call first, permission calls last, and
//     never a redundant permission transaction).
//   - Registry: read-only contract views (app id derivation, quotas, log
//     visibility, bulk app summaries with per-item failure isolation).
//   - DelegationManager: detects the delegation designator in account code
//     and signs a one-time authorization when it is missing.
//   - GasEstimator: conservative fee ceilings with fixed safety multipliers.
//   - Executor: transaction submission, confirmation and structured revert
//     decoding against the registry's known custom-error set. The revert
//     simulation runs only after a failure; the success path never pays for
//     it.
package onchain
