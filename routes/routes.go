package routes

import (
	"time"

	"fibo_store/app"
	"fibo_store/controllers"
	"fibo_store/storage"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	s := controllers.GetSrv(a)
	itemCtl := controllers.NewItemController(s)
	bookingCtl := controllers.NewBookingController(s)
	userCtl := controllers.NewUserController(s)

	authMW := app.AuthRequired(a.Tokens)
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute, a.Log)

	r.GET("/healthz", s.Health)

	if ds, ok := a.Images.(*storage.DiskStore); ok {
		r.Static(storage.UploadsPath, ds.Dir())
	}

	// ------------------------------
	// sign-in
	// ------------------------------
	authG := r.Group("/auth")
	{
		authG.GET("/google/login", s.GoogleLogin)
		authG.GET("/google/callback", s.GoogleCallback)
		authG.POST("/refresh", s.Refresh)
		authG.POST("/logout", s.Logout)

		authG.POST("/passkeys/login/begin", s.BeginLogin)
		authG.POST("/passkeys/login/finish", s.FinishLogin)
	}
	authUser := r.Group("/auth", authMW, seenMW)
	{
		authUser.GET("/me", s.Me)
		authUser.POST("/passkeys/begin", s.BeginAddCredential)
		authUser.POST("/passkeys/finish", s.FinishAddCredential)
	}

	// ------------------------------
	// catalogue
	// ------------------------------
	r.GET("/items", itemCtl.ListItems)
	r.GET("/items/:id", itemCtl.GetItem)
	r.GET("/categories", itemCtl.Categories)

	itemsAdmin := r.Group("/items", authMW, adminMW)
	{
		itemsAdmin.POST("", itemCtl.CreateItem)
		itemsAdmin.PUT("/:id", itemCtl.UpdateItem)
		itemsAdmin.DELETE("/:id", itemCtl.DeleteItem)
	}

	// ------------------------------
	// bookings
	// ------------------------------
	user := r.Group("", authMW, seenMW)
	{
		user.POST("/bookings", bookingCtl.CreateBooking)
		user.GET("/bookings/:id", bookingCtl.GetBooking)
		user.GET("/my-bookings", bookingCtl.MyBookings) // ?email=&status=
	}
	r.PATCH("/bookings/:id/status", authMW, adminMW, bookingCtl.UpdateStatus)

	// ------------------------------
	// admin
	// ------------------------------
	admin := r.Group("/admin", authMW, adminMW, seenMW)
	{
		admin.GET("/bookings", bookingCtl.AdminBookings) // ?status=
		admin.GET("/bookings/:id/history", bookingCtl.History)
		admin.GET("/items", itemCtl.AdminListItems) // ?q=&category=&low_stock=&page=&size=
		admin.GET("/stats", itemCtl.Stats)

		admin.GET("/users", userCtl.ListUsers)
		admin.GET("/users/:id", userCtl.GetUser)
		admin.DELETE("/users/:id", userCtl.DeleteUser)
	}
}
