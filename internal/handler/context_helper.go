package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/report-revision-api/internal/middleware"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

func actorFromContext(c *gin.Context) (string, error) {
	actor := middleware.ActorFromContext(c)
	if actor == "" {
		return "", appErrors.ErrUnauthorized
	}
	return actor, nil
}

func pathVersion(c *gin.Context, name string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(c.Param(name)))
	if err != nil || version < 1 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a positive integer")
	}
	return version, nil
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
