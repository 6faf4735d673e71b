package controllers

import (
	"errors"
	"net/http"

	"fibo_store/app"
	"fibo_store/auth"
	"fibo_store/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondErr maps service errors onto status codes. Bodies always carry
// "detail"; validation failures list the offending fields.
func (s *Srv) respondErr(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, app.H{"detail": ve.Fields})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, app.H{"detail": err.Error()})
	case errors.Is(err, services.ErrForbidden), errors.Is(err, auth.ErrDomainNotAllowed):
		c.JSON(http.StatusForbidden, app.H{"detail": err.Error()})
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, app.H{"detail": err.Error()})
	default:
		s.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("req_id", c.GetString(app.RequestIDHeader)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, app.H{"detail": "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, app.H{"detail": msg})
}
