package utils

// Build metadata injected at link time via -ldflags.
var (
	Version   = "dev"
	Sha       = "unknown"
	Buildtime = "unknown"
)
