// Package version reports nwave build metadata.
//
// Version, commit and build time are set at link time:
//
//	go build -ldflags "-X github.com/ionite34/nwave/version.Version=1.0.0" ./cmd/nwave
//
// Anything not set falls back to the module and VCS data the Go toolchain
// embeds in the binary.
package version
