/*
handlers.go - HTTP handlers for material requisitions

PURPOSE:
  Exposes sessions, catalogs, periods and requisitions over HTTP. Handles
  request parsing and validation, and delegates to the requisition and
  session packages.

ENDPOINTS:
  Session:
    POST   /login                 Form "token". 302 to /solicitudes/capturar or /
    GET    /logout                Clears the session. 302 to /

  Catalogs (JSON tables):
    GET    /materiales, /grupos, /usuarios, /zonas, /departamentos, /periodo
    GET    /solicitudes/capturar  Active materials

  Requisitions:
    POST   /solicitudes/post      Form cantidad, material, periodo[, comentarios]
    POST   /solicitudes/get       JSON {id_zona, id_departamento, id_periodo}
    POST   /solicitudes/delete    JSON {id_material}. Owner from the session

  Periods:
    GET|POST /periodo/get         Optional JSON {editable}

ERROR HANDLING:
  Client mistakes and closed periods answer {"success": false} with 200.
  Store failures are logged and answer {"success": false} with 500, or 503
  when the database cannot be reached. Pages answer a generic error page.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/consad/compras/requisition"
	"github.com/consad/compras/session"
	"github.com/consad/compras/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Services are the domain components the handlers delegate to.
type Services struct {
	Sessions *session.Resolver
	Catalog  *requisition.Catalog
	Gate     *requisition.Gate
	Engine   *requisition.Engine
	Reader   *requisition.Reader
}

// CookieOptions configures the session cookie.
type CookieOptions struct {
	Name   string
	Secure bool
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Resolver
	catalog  *requisition.Catalog
	gate     *requisition.Gate
	engine   *requisition.Engine
	reader   *requisition.Reader
	cookie   CookieOptions
}

// NewHandler creates a handler.
func NewHandler(s Services, cookie CookieOptions) *Handler {
	return &Handler{
		sessions: s.Sessions,
		catalog:  s.Catalog,
		gate:     s.Gate,
		engine:   s.Engine,
		reader:   s.Reader,
		cookie:   cookie,
	}
}

// =============================================================================
// PUBLIC PAGES
// =============================================================================

// Home renders the welcome page.
// GET /, /home, /home/{token}
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	msg := "Captura de solicitudes de material."
	if tok := chi.URLParam(r, "token"); tok != "" {
		msg += " Token: " + tok
	}
	if id, ok := session.FromContext(r.Context()); ok {
		msg += fmt.Sprintf(" Sesión: %s (%s, %s).", id.UserName, id.ZoneName, id.DepartmentName)
	}
	writePage(w, http.StatusOK, "Bienvenido", msg)
}

// About renders the about page.
// GET /about
func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	writePage(w, http.StatusOK, "Acerca de", "Sistema de solicitudes de material por periodo.")
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

// Login exchanges a token for a session cookie.
// POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	form := LoginForm{Token: r.PostFormValue("token")}
	if err := validate.Struct(form); err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	_, cookie, err := h.sessions.Login(r.Context(), form.Token)
	if errors.Is(err, session.ErrInvalidToken) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if err != nil {
		logFailure(r, err, "login failed")
		writeErrorPage(w, statusFor(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    cookie,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/solicitudes/capturar", http.StatusFound)
}

// Logout clears the session and its cookie.
// GET /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cookie.Name); err == nil {
		if err := h.sessions.Logout(r.Context(), c.Value); err != nil {
			logFailure(r, err, "logout failed")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

// ShowCatalog returns a handler rendering one catalog.
func (h *Handler) ShowCatalog(kind requisition.CatalogKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table, err := h.catalog.Read(r.Context(), kind)
		if err != nil {
			logFailure(r, err, "catalog read failed")
			writeErrorPage(w, statusFor(err))
			return
		}

		writeJSON(w, http.StatusOK, CatalogResponse{
			Tipo:    table.Title,
			Columns: table.Columns,
			Rows:    table.Rows,
		})
	}
}

// =============================================================================
// REQUISITION ENDPOINTS
// =============================================================================

// SubmitRequisition sets the quantity of a requisition for the session's
// zone and department.
// POST /solicitudes/post
func (h *Handler) SubmitRequisition(w http.ResponseWriter, r *http.Request) {
	identity, err := session.Require(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: false})
		return
	}

	form, err := parseSubmitForm(w, r)
	if err != nil {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: false})
		return
	}

	err = h.engine.Submit(r.Context(), requisition.Submission{
		MaterialID: form.Material,
		Quantity:   form.Cantidad,
		PeriodID:   form.Periodo,
		Owner:      identity.Owner(),
		Comment:    form.Comentarios,
	})
	if err != nil {
		h.failJSON(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func parseSubmitForm(w http.ResponseWriter, r *http.Request) (SubmitForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return SubmitForm{}, err
	}

	for _, field := range []string{"cantidad", "material", "periodo"} {
		if _, ok := r.PostForm[field]; !ok {
			return SubmitForm{}, fmt.Errorf("missing %s", field)
		}
	}

	qty, err := requisition.ParseQuantity(r.PostFormValue("cantidad"))
	if err != nil {
		return SubmitForm{}, err
	}
	period, err := strconv.ParseInt(strings.TrimSpace(r.PostFormValue("periodo")), 10, 64)
	if err != nil {
		return SubmitForm{}, fmt.Errorf("periodo: %w", err)
	}

	form := SubmitForm{
		Cantidad:    qty,
		Material:    strings.TrimSpace(r.PostFormValue("material")),
		Periodo:     period,
		Comentarios: r.PostFormValue("comentarios"),
	}
	if err := validate.Struct(form); err != nil {
		return SubmitForm{}, err
	}
	return form, nil
}

// ListRequisitions returns the requisitions of one zone, department and period.
// POST /solicitudes/get
func (h *Handler) ListRequisitions(w http.ResponseWriter, r *http.Request) {
	var req ListRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: false})
		return
	}

	lines, err := h.reader.List(r.Context(), requisition.Filter{
		ZoneID:       req.ZoneID,
		DepartmentID: req.DepartmentID,
		PeriodID:     req.PeriodID,
	})
	if err != nil {
		h.failJSON(w, r, err)
		return
	}

	resp := LinesResponse{Headings: requisition.LineHeadings, Data: make([][]string, 0, len(lines))}
	for _, l := range lines {
		resp.Data = append(resp.Data, l.Row())
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteRequisition deletes a material's requisitions for the session's
// zone and department.
// POST /solicitudes/delete
func (h *Handler) DeleteRequisition(w http.ResponseWriter, r *http.Request) {
	identity, err := session.Require(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: false})
		return
	}

	var req DeleteRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: false})
		return
	}

	if err := h.reader.Delete(r.Context(), req.MaterialID, identity.Owner()); err != nil {
		h.failJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// =============================================================================
// PERIOD ENDPOINTS
// =============================================================================

// ListPeriods returns active periods, newest first.
// GET|POST /periodo/get
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	var req PeriodsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: false})
		return
	}

	views, err := h.gate.Periods(r.Context(), req.Editable)
	if err != nil {
		h.failJSON(w, r, err)
		return
	}

	resp := PeriodsResponse{Headings: requisition.PeriodHeadings, Data: make([][]any, 0, len(views))}
	for _, v := range views {
		resp.Data = append(resp.Data, v.Row())
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// maxBodyBytes caps JSON and form request bodies.
const maxBodyBytes = 1 << 20 // 1MB

// decodeJSON decodes the body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// failJSON answers {"success": false}. Expected outcomes (bad input, closed
// period, no data) are not logged.
func (h *Handler) failJSON(w http.ResponseWriter, r *http.Request, err error) {
	if requisition.IsClientError(err) || errors.Is(err, requisition.ErrNoData) {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: false})
		return
	}

	logFailure(r, err, "request failed")
	writeJSON(w, statusFor(err), SuccessResponse{Success: false})
}

func statusFor(err error) int {
	if errors.Is(err, store.ErrBackendUnavailable) || errors.Is(err, store.ErrNotSQLite) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func logFailure(r *http.Request, err error, msg string) {
	log.Error().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg(msg)
}

func writeErrorPage(w http.ResponseWriter, status int) {
	writePage(w, status, "Error", "Ocurrió un error al procesar la solicitud.")
}

func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%[1]s</title></head>
<body>
<h1>%[1]s</h1>
<p>%[2]s</p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(message))
}
