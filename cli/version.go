package cli

// Version is injected at build time.
var Version = "dev"

func version() string { return Version }
