package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router is implemented by every route group installer.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// Install HttpRouter first so the repository factory exists before any
	// API route that depends on it is registered.
	setup(app, NewHttpRouter(), NewApiRouter())
}
func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
