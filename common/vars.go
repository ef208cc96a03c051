package common

var (
	// Version is overridden at build time with -ldflags "-X .../common.Version=...".
	Version = "dev"

	// PackageName is the default service tag in logs.
	PackageName = "fileio"
)
