package router

import "github.com/gin-gonic/gin"

// Module describes a feature module. Pages and browser form posts go on
// root; JSON endpoints go on api (mounted at /api).
type Module interface {
	Register(root, api *gin.RouterGroup)
}
