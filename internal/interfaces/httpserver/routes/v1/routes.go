package v1

import (
	"github.com/gin-gonic/gin"

	"imagevault/internal/infrastructure/auth"
	"imagevault/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
	auth     *auth.Validator
}

func NewRoutes(provider *handlers.Provider, authValidator *auth.Validator) *Routes {
	return &Routes{handlers: provider, auth: authValidator}
}

// Register attaches all v1 routes under the /v1 prefix. Image CRUD requires
// a bearer token; standalone screening does not.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")

	images := group.Group("/images", r.auth.Middleware())
	images.POST("", r.handlers.Image.Create)
	images.GET("", r.handlers.Image.List)
	images.GET("/:id", r.handlers.Image.Get)
	images.PUT("/:id", r.handlers.Image.Replace)
	images.DELETE("/:id", r.handlers.Image.Destroy)

	group.POST("/screen", r.handlers.Image.Screen)
}
