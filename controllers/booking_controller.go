package controllers

import (
	"net/http"

	"fibo_store/services"

	"github.com/gin-gonic/gin"
)

type BookingController struct{ *Srv }

func NewBookingController(s *Srv) *BookingController { return &BookingController{Srv: s} }

// POST /bookings
func (bc *BookingController) CreateBooking(c *gin.Context) {
	var in services.CreateBookingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	b, err := bc.Bookings.Create(ctx, principal(c), in)
	if err != nil {
		bc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (bc *BookingController) GetBooking(c *gin.Context) {
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	b, err := bc.Bookings.Get(ctx, principal(c), c.Param("id"))
	if err != nil {
		bc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GET /my-bookings?email=&status=
func (bc *BookingController) MyBookings(c *gin.Context) {
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	list, err := bc.Bookings.ListMine(ctx, principal(c), c.Query("email"), c.Query("status"))
	if err != nil {
		bc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GET /admin/bookings?status=
func (bc *BookingController) AdminBookings(c *gin.Context) {
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	list, err := bc.Bookings.ListAll(ctx, principal(c), c.Query("status"))
	if err != nil {
		bc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type statusUpdateReq struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// PATCH /bookings/:id/status
func (bc *BookingController) UpdateStatus(c *gin.Context) {
	var req statusUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	b, err := bc.Bookings.Transition(ctx, principal(c), c.Param("id"), req.Status, req.Note)
	if err != nil {
		bc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (bc *BookingController) History(c *gin.Context) {
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	hist, err := bc.Bookings.History(ctx, principal(c), c.Param("id"))
	if err != nil {
		bc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}
