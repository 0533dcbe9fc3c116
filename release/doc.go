// Package release builds versioned Release records from a resolved image and
// optional environment configuration. Environment keys ending in the public
// suffix are published in the clear; everything else is JSON-encoded and
// sealed with the target environment's envelope encryption key. The reserved
// mnemonic key is never included, public or encrypted. Building a release
// performs no chain interaction.
package release
