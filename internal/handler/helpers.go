package handler

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/apierror"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/middleware"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0 and gt=0 work on it.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false after writing the error response; the caller returns
// immediately.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
		return false
	}
	return runValidator(c, req)
}

// bindQuery is bindAndValidate for query-string filters.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid query: "+err.Error()))
		return false
	}
	return runValidator(c, req)
}

func runValidator(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// callerFrom builds the service caller from the verified JWT claims.
func callerFrom(c *gin.Context) service.Caller {
	claims := middleware.GetClaims(c)
	tenantID, _ := uuid.Parse(claims.TenantID)
	operatorID, _ := uuid.Parse(claims.OperatorID)
	return service.Caller{TenantID: tenantID, OperatorID: operatorID, Role: claims.Role}
}

// pathID parses a UUID path parameter, writing 400 on failure.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps the service error taxonomy onto HTTP statuses. Rejected
// preconditions carry their message verbatim; anything unexpected is logged
// and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	var (
		ve *service.ValidationError
		se *service.InsufficientStockError
		pe *service.PaymentMismatchError
		ce *service.SessionClosedError
		ie *service.IntegrityError
	)
	switch {
	case errors.As(err, &ve):
		fields := map[string]string{}
		if ve.Field != "" {
			fields[ve.Field] = ve.Message
		}
		c.JSON(http.StatusUnprocessableEntity, &apierror.ValidationError{Detail: ve.Error(), Fields: fields})
	case errors.As(err, &pe):
		c.JSON(http.StatusUnprocessableEntity, apierror.New(pe.Error()))
	case errors.As(err, &se):
		c.JSON(http.StatusConflict, apierror.New(se.Error()))
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, apierror.New(ce.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, apierror.New("not found"))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, apierror.NewRetryable(err.Error()))
	case errors.Is(err, service.ErrTxTimeout):
		c.JSON(http.StatusServiceUnavailable, apierror.NewRetryable("the store is busy, try again"))
	case errors.As(err, &ie):
		logInternal(c, err)
		c.JSON(http.StatusInternalServerError, apierror.New("integrity violation, the operation was rolled back"))
	default:
		logInternal(c, err)
		c.JSON(http.StatusInternalServerError, apierror.New("internal server error"))
	}
}

func logInternal(c *gin.Context, err error) {
	log.Error().
		Err(err).
		Str("request_id", c.GetString(middleware.RequestIDKey)).
		Str("path", c.FullPath()).
		Str("method", c.Request.Method).
		Msg("request failed")
}
