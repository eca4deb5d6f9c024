package router

import "github.com/gin-gonic/gin"

// Registrar is implemented by each module to mount its routes.
type Registrar interface{ Register(r *gin.Engine) }

// Central registry of modules to assemble.
var registrars []Registrar

func Register(rs ...Registrar) { registrars = append(registrars, rs...) }

func MountAll(r *gin.Engine) {
	for _, rg := range registrars {
		rg.Register(r)
	}
}

// New builds the gin engine the modules mount onto.
func New() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}
