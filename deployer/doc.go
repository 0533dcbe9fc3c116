// Package deployer orchestrates application deploys and upgrades: image
// resolution, release building, batch planning, delegation, gas estimation,
// transaction submission, and status watching, run as one sequential
// pipeline per invocation.
package deployer
