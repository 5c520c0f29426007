// Package handler holds helpers shared by the HTTP handlers.
package handler

import (
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
)

// IDParam parses a positive integer path parameter.
func IDParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.BadRequest("invalid "+name, err)
	}
	return id, nil
}

// DateParam parses a YYYY-MM-DD value.
func DateParam(value, name string) (civil.Date, error) {
	d, err := civil.ParseDate(value)
	if err != nil {
		return civil.Date{}, apperrors.BadRequest("invalid "+name+", expected YYYY-MM-DD", err)
	}
	return d, nil
}
