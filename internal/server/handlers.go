package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/git-pkgs/igcache"
	"github.com/git-pkgs/igcache/client"
	"github.com/git-pkgs/igcache/internal/core"
)

// MaxUploadSize bounds an uploaded archive.
const MaxUploadSize = 256 << 20

// RegisterRequest is the body of POST /igs/register.
// A package is named by name and version, by a pkg:npm purl, or by a
// downloadUrl.
type RegisterRequest struct {
	Name              string `json:"name" validate:"required_without_all=PURL DownloadURL"`
	Version           string `json:"version"`
	PURL              string `json:"purl"`
	IncludeDependency *bool  `json:"includeDependency"`
	DownloadURL       string `json:"downloadUrl" validate:"omitempty,url"`
}

// PackageResponse describes a registered package.
type PackageResponse struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Canonical    string            `json:"canonical,omitempty"`
	FHIRVersions []string          `json:"fhirVersions,omitempty"`
	CorePackage  string            `json:"corePackage,omitempty"`
	Dependencies []string          `json:"dependencies"`
	Links        map[string]string `json:"links,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Registries []string          `json:"registries"`
	Breakers   map[string]string `json:"breakers"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler handles IG package HTTP requests
type Handler struct {
	svc    *igcache.Service
	logger *zap.Logger
}

// NewHandler creates a new IG handler
func NewHandler(svc *igcache.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes registers the IG routes on g.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.POST("/register", h.Register)
	g.POST("/upload", h.Upload)
	g.GET("/:name/:version/dependencies", h.Dependencies)
	g.GET("/:name/:version/conformance", h.Conformance)
}

// Register handles POST /igs/register
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Debug("Failed to bind request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	includeDeps := req.IncludeDependency == nil || *req.IncludeDependency
	ctx := c.Request().Context()

	var (
		a   *igcache.Archive
		err error
	)
	switch {
	case req.DownloadURL != "":
		a, err = h.svc.RegisterFromURL(ctx, req.DownloadURL, includeDeps)
	case req.PURL != "":
		ref, perr := core.ParsePURL(req.PURL)
		if perr != nil {
			return h.fail(c, perr)
		}
		a, err = h.svc.RegisterIG(ctx, ref.Name, ref.Version, includeDeps)
	default:
		version := req.Version
		if version == "" {
			version = igcache.VersionLatest
		}
		a, err = h.svc.RegisterIG(ctx, req.Name, version, includeDeps)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.describe(a))
}

// Upload handles POST /igs/upload
func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing file"})
	}

	includeDeps := true
	if v := c.FormValue("includeDependency"); v != "" {
		includeDeps, err = strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "includeDependency must be a boolean"})
		}
	}

	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable file"})
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable file"})
	}
	if len(raw) > MaxUploadSize {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "archive too large"})
	}

	a, err := h.svc.RegisterArchive(c.Request().Context(), raw, includeDeps)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, h.describe(a))
}

// Dependencies handles GET /igs/:name/:version/dependencies
func (h *Handler) Dependencies(c echo.Context) error {
	graph, err := h.svc.DependencyGraph(c.Request().Context(), c.Param("name"), c.Param("version"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, graph)
}

// Conformance handles GET /igs/:name/:version/conformance
func (h *Handler) Conformance(c echo.Context) error {
	report, err := h.svc.ConformanceReport(c.Request().Context(), c.Param("name"), c.Param("version"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		Registries: h.svc.Registries(),
		Breakers:   h.svc.RegistryHealth(),
	})
}

func (h *Handler) describe(a *igcache.Archive) PackageResponse {
	resp := PackageResponse{
		Name:         a.Name,
		Version:      a.Version,
		Canonical:    a.Canonical,
		FHIRVersions: a.FHIRVersions,
		Dependencies: a.Dependencies,
	}
	if resp.Dependencies == nil {
		resp.Dependencies = []string{}
	}
	if pkg, ok := core.CorePackageForFHIRVersion(a.FHIRVersion); ok {
		resp.CorePackage = pkg.String()
	}
	if regs := h.svc.Registries(); len(regs) > 0 {
		resp.Links = client.BuildURLs(client.NewURLs(regs[0]), a.Name, a.Version)
	}
	return resp
}

// fail maps service errors onto HTTP statuses.
func (h *Handler) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("uri", c.Request().RequestURI),
			zap.String("request_id", c.Response().Header().Get(HeaderRequestID)),
			zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case core.IsValidation(err):
		return http.StatusBadRequest
	case core.IsPersistence(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
