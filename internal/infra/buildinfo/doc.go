// Package buildinfo exposes build information for memscope.
//
// Version, Commit and BuildTime can be injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/memscope-go/internal/infra/buildinfo.Version=v0.3.0"
//
// Without them the module version and VCS stamp are
// read from the binary's embedded build information.
package buildinfo
