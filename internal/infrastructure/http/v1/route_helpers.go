package v1

import (
	"github.com/gin-gonic/gin"
)

// DocumentRouteHandler is implemented by every workflow document handler.
type DocumentRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
}

// DocumentAction is a POST /:id/{Path} state change.
type DocumentAction struct {
	Path    string
	Handler gin.HandlerFunc
	Guards  []gin.HandlerFunc
}

// RegisterDocumentRoutes registers list/create/get plus one POST route per action.
// createGuards run before Create.
//
// Usage:
//
//	RegisterDocumentRoutes(api.Group("/shipments"), handler, kitchen,
//		DocumentAction{Path: "pick", Handler: handler.Pick, Guards: kitchen},
//		DocumentAction{Path: "dispatch", Handler: handler.Dispatch, Guards: kitchen},
//	)
func RegisterDocumentRoutes(group *gin.RouterGroup, handler DocumentRouteHandler, createGuards []gin.HandlerFunc, actions ...DocumentAction) {
	group.GET("", handler.List)
	group.POST("", append(append([]gin.HandlerFunc{}, createGuards...), handler.Create)...)
	group.GET("/:id", handler.Get)

	for _, a := range actions {
		chain := append(append([]gin.HandlerFunc{}, a.Guards...), a.Handler)
		group.POST("/:id/"+a.Path, chain...)
	}
}
