package api

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Options configures the router's middleware.
type Options struct {
	AllowedOrigins []string
	Logger         *log.Logger
}

// NewRouter mounts every route under Prefix.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	useJSONFieldNames()

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if h.Logger == nil {
		h.Logger = logger
	}

	r := gin.New()
	r.Use(RequestLogger(logger), Recovery(logger), SecurityHeaders(), CORS(opts.AllowedOrigins))

	v1 := r.Group(Prefix)
	{
		v1.GET("/health", h.Health)
		v1.POST("/users/login", h.Login)
		v1.POST("/users", h.CreateUser)

		authed := v1.Group("/tasks", Auth(h.Tokens))
		authed.GET("", h.ListTasks)
		authed.POST("", h.CreateTask)
		authed.PATCH("/:id", h.UpdateTask)
		authed.DELETE("/:id", h.DeleteTask)
	}

	r.NoRoute(func(c *gin.Context) {
		respond(c, http.StatusNotFound, "The requested endpoint does not exist", nil)
	})
	return r
}
