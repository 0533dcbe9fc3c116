// Package imageutils resolves container image references to content digests,
// enforcing the single platform supported by the confidential execution
// environment.
//
// Two resolver variants are provided. Resolver uses a local Docker engine for
// single-platform metadata inspection; NetworkResolver speaks the registry v2
// HTTP protocol directly and requires no local engine. Both select the
// required platform from multi-platform manifest indexes and fail with a
// PlatformMismatchError enumerating every platform found when none match.
package imageutils
