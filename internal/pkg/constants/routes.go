package constants

// Static route constants
const (
	APIRoute    = "/api"
	APIv1Route  = "/api/v1"
	DocsRoute   = "/docs/api/"
	HealthRoute = "/healthz"
)
