package env

const AppName = "sigscan"

// Set at build time through -ldflags "-X github.com/ostafen/sigscan/internal/env.Version=..."
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)
