/*
dto.go - Data Transfer Objects for HTTP API

PURPOSE:
  Defines request and response structures for the HTTP API.
  These are separate from domain types to:
  - Decouple API contract from internal implementation
  - Carry validation tags (go-playground/validator)
  - Keep the wire names the front end expects

SUCCESS ENVELOPE:
  Write endpoints and failed reads answer {"success": bool}. Successful
  reads answer with a table: {"headings": [...], "data": [[...]]}.

SEE ALSO:
  - handlers.go: Uses these DTOs
  - requisition/types.go: Domain types these map to
*/
package api

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// decimal.Decimal is validated as a number (gte=1 etc).
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// =============================================================================
// REQUEST DTOs
// =============================================================================

// LoginForm is the POST /login form.
type LoginForm struct {
	Token string `validate:"required,max=255"`
}

// SubmitForm is the POST /solicitudes/post form after parsing.
type SubmitForm struct {
	Cantidad    decimal.Decimal `validate:"required,gte=1"`
	Material    string          `validate:"required,max=255"`
	Periodo     int64           `validate:"required,gt=0"`
	Comentarios string          `validate:"max=2000"`
}

// ListRequest is the POST /solicitudes/get body.
type ListRequest struct {
	ZoneID       int64 `json:"id_zona" validate:"required"`
	DepartmentID int64 `json:"id_departamento" validate:"required"`
	PeriodID     int64 `json:"id_periodo" validate:"required"`
}

// DeleteRequest is the POST /solicitudes/delete body.
type DeleteRequest struct {
	MaterialID string `json:"id_material" validate:"required,max=255"`
}

// PeriodsRequest is the optional /periodo/get body.
type PeriodsRequest struct {
	Editable *bool `json:"editable"`
}

// =============================================================================
// RESPONSE DTOs
// =============================================================================

type SuccessResponse struct {
	Success bool `json:"success"`
}

// CatalogResponse is a catalog page. Rows is null when there is no data.
type CatalogResponse struct {
	Tipo    string   `json:"tipo"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type LinesResponse struct {
	Headings []string   `json:"headings"`
	Data     [][]string `json:"data"`
}

type PeriodsResponse struct {
	Headings []string `json:"headings"`
	Data     [][]any  `json:"data"`
}
