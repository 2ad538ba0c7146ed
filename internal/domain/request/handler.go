package request

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/symptra/symptra/internal/platform/apierror"
	"github.com/symptra/symptra/internal/platform/auth"
	"github.com/symptra/symptra/pkg/pagination"
)

// ReplayHeader marks a decision response that repeats an outcome the same
// reviewer had already stored.
const ReplayHeader = "X-Idempotent-Replay"

type Handler struct {
	factory *Factory
	engine  *ReviewEngine
	views   *Views
}

func NewHandler(factory *Factory, engine *ReviewEngine, views *Views) *Handler {
	return &Handler{factory: factory, engine: engine, views: views}
}

// RegisterRoutes mounts the submitter and reviewer endpoints on api. It may
// be called for several prefixes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/requests", h.Submit)
	api.GET("/requests/mine", h.ListMine)
	api.GET("/requests/:id", h.Get)

	queue := api.Group("/admin/requests", auth.RequireCapability(auth.CanViewQueue))
	queue.GET("", h.ListByStatus)
	queue.GET("/pending", h.PendingQueue)

	review := api.Group("/admin/requests", auth.RequireCapability(auth.CanReview))
	review.POST("/:id/approve", h.Approve)
	review.POST("/:id/reject", h.Reject)
}

func (h *Handler) Submit(c echo.Context) error {
	var sub Submission
	if err := c.Bind(&sub); err != nil {
		return apierror.New(http.StatusBadRequest, "BadRequest", "request body must be a JSON object with type and data", nil)
	}
	ctx := c.Request().Context()
	r, err := h.factory.Submit(ctx, auth.PrincipalFromContext(ctx), sub)
	if err != nil {
		return toHTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderLocation, c.Path()+"/"+r.ID.String())
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListMine(c echo.Context) error {
	opts, pg, err := listOptions(c)
	if err != nil {
		return toHTTPError(err)
	}
	ctx := c.Request().Context()
	items, total, err := h.views.MyRequests(ctx, auth.PrincipalFromContext(ctx), opts)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	r, err := h.views.Get(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListByStatus(c echo.Context) error {
	return h.list(c, Status(strings.TrimSpace(c.QueryParam("status"))))
}

func (h *Handler) PendingQueue(c echo.Context) error {
	return h.list(c, StatusPending)
}

func (h *Handler) list(c echo.Context, status Status) error {
	opts, pg, err := listOptions(c)
	if err != nil {
		return toHTTPError(err)
	}
	ctx := c.Request().Context()
	items, total, err := h.views.ListByStatus(ctx, auth.PrincipalFromContext(ctx), status, opts)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL.Path, c.QueryParams()))
}

type decisionBody struct {
	Notes *string `json:"notes"`
}

func (h *Handler) Approve(c echo.Context) error {
	return h.decide(c, DecisionApprove)
}

func (h *Handler) Reject(c echo.Context) error {
	return h.decide(c, DecisionReject)
}

func (h *Handler) decide(c echo.Context, d Decision) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body decisionBody
	if err := c.Bind(&body); err != nil {
		return apierror.New(http.StatusBadRequest, "BadRequest", "request body must be a JSON object", nil)
	}

	ctx := c.Request().Context()
	p := auth.PrincipalFromContext(ctx)
	r, err := h.engine.Decide(ctx, p, id, d, body.Notes)
	if err != nil {
		var e *Error
		if errors.As(err, &e) && IsReplay(err, auth.UserIDFromContext(ctx), d) {
			c.Response().Header().Set(ReplayHeader, "true")
			return c.JSON(http.StatusOK, e.Current)
		}
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Not a well-formed id, so no such request can exist.
		return uuid.Nil, apierror.New(http.StatusNotFound, string(KindNotFound), "request not found", nil)
	}
	return id, nil
}

func listOptions(c echo.Context) (ListOptions, pagination.Params, error) {
	types, err := ParseTypes(c.QueryParam("type"))
	if err != nil {
		return ListOptions{}, pagination.Params{}, err
	}
	pg := pagination.FromContext(c)
	return ListOptions{Types: types, Limit: pg.Limit, Offset: pg.Offset}, pg, nil
}

// toHTTPError maps workflow error kinds onto status codes. Errors outside
// the taxonomy pass through and become 500s.
func toHTTPError(err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	var status int
	var details interface{}
	switch e.Kind {
	case KindUnrecognizedType:
		status = http.StatusUnprocessableEntity
	case KindMalformedPayload:
		status = http.StatusUnprocessableEntity
		if len(e.Fields) > 0 {
			details = e.Fields
		}
	case KindUnauthenticatedSubmitter:
		status = http.StatusUnauthorized
	case KindForbidden:
		status = http.StatusForbidden
	case KindNotFound:
		status = http.StatusNotFound
	case KindInvalidStateTransition:
		status = http.StatusConflict
		if e.Current != nil {
			details = map[string]interface{}{"current": e.Current}
		}
	case KindDuplicateID:
		status = http.StatusConflict
	case KindStoreUnavailable:
		if errors.Is(err, context.DeadlineExceeded) {
			he := apierror.New(http.StatusGatewayTimeout, string(e.Kind), "request timed out waiting for the store", nil)
			return he.SetInternal(err)
		}
		status = http.StatusServiceUnavailable
		he := apierror.New(status, string(e.Kind), "request store is unavailable, retry later", nil)
		return he.SetInternal(err)
	default:
		return err
	}
	return apierror.New(status, string(e.Kind), e.Message, details)
}
