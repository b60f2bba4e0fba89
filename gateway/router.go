package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"polling-gateway/ratelimit"
)

type RouterOptions struct {
	Limiter *ratelimit.Limiter
	Stats   ratelimit.StatsStore
	Logger  zerolog.Logger
}

// NewRouter wires the full HTTP surface. Every externally reachable
// endpoint sits behind admission, each under its own endpoint class so one
// exhausted class does not starve the others. The auth routes are mounted
// only when an identity adapter is configured.
func NewRouter(h *Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), AccessLog(opts.Logger), CORS())

	admit := func(class string) gin.HandlerFunc {
		return ratelimit.Middleware(class, ratelimit.Options{
			Limiter: opts.Limiter,
			Stats:   opts.Stats,
		})
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/createPoll", admit("createPoll"), h.CreatePoll)
	router.POST("/castVote", admit("castVote"), h.CastVote)
	router.POST("/closePoll", admit("closePoll"), h.ClosePoll)
	router.GET("/pollDetails/:pollId", admit("pollDetails"), h.PollDetails)
	router.GET("/votes/:pollId/:optionIndex", admit("votes"), h.Votes)

	if h.Identity != nil {
		auth := router.Group("/auth")
		{
			auth.POST("/signup", admit("signup"), h.Signup)
			auth.POST("/login", admit("login"), h.Login)
			auth.POST("/logout", admit("logout"), h.Logout)
		}
	}

	return router
}
