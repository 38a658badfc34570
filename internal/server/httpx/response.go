// Package httpx holds the gin plumbing shared by every HTTP handler: the
// JSON envelope, request binding and session middleware.
package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/logger"
)

// Response is the envelope of every JSON body.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// Message replies 200 with a human-readable note and no data.
func Message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, Response{Success: true, Message: msg})
}

// Fail classifies err and writes the matching status. Storage failures are
// logged with their cause; callers only see the generic message.
func Fail(c *gin.Context, err error) {
	e := svcErr.Map(err)
	status := e.HTTPStatus()

	log := logger.FromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "kind", e.Kind, "err", err)
	} else {
		log.Debug("request rejected", "kind", e.Kind, "err", err)
	}

	c.AbortWithStatusJSON(status, Response{Success: false, Error: e.Message})
}

// BindJSON decodes the body into req and runs its binding tags. Failures
// come back as ValidationFailed with readable field messages.
func BindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return bindError(err)
	}
	return nil
}

// BindQuery is BindJSON for query strings.
func BindQuery(c *gin.Context, req any) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return bindError(err)
	}
	return nil
}

var tagNameOnce sync.Once

// UseJSONFieldNames makes validation messages name fields by their json tag.
func UseJSONFieldNames() {
	tagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = f.Tag.Get("form")
			}
			return name
		})
	})
}

func bindError(err error) error {
	if errors.Is(err, io.EOF) {
		return svcErr.InvalidArgument("request body is required")
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return svcErr.InvalidArgument(strings.Join(msgs, "; "))
	}
	return svcErr.InvalidArgument("invalid request body")
}

func fieldMessage(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
