package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes 挂载 /api/v1 下的路由，auth 为登录态校验中间件
func (h *APIHandler) RegisterRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	public := api.Group("/public")
	{
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
	}

	authed := api.Group("", auth)
	{
		authed.GET("/users/search", h.SearchUsers)

		authed.GET("/profile", h.Me)
		authed.PUT("/profile", h.UpdateProfile)
		authed.POST("/profile/avatar", h.UploadAvatar)

		authed.GET("/settings", h.GetSettings)
		authed.PUT("/settings", h.UpdateSettings)

		authed.GET("/friends", h.ListFriends)
		authed.GET("/friends/requests", h.ListFriendRequests)
		authed.POST("/friends/request", h.SendFriendRequest)
		authed.POST("/friends/respond", h.RespondFriendRequest)

		authed.GET("/messages/:peerId", h.History)
	}
}
