package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CommandBody struct {
	Command string `json:"command"`
	// only for /api/queue: wait for room instead of failing on a full queue
	Wait bool `json:"wait"`
}

type DeviceInfoResponse struct {
	Info    *domain.DeviceInfo         `json:"info"`
	Sensors []domain.SensorDescription `json:"sensors,omitempty"`
}

type CommandResponse struct {
	Command string                 `json:"command"`
	Result  domain.ResponseMapping `json:"result"`
}

type PluginResponse struct {
	Name        string `json:"name"`
	Alias       string `json:"alias,omitempty"`
	Version     string `json:"version"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Dir         string `json:"dir"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/device", s.DeviceHandler)
	api.GET("/status", s.StatusHandler)
	api.GET("/settings", s.SettingsHandler)
	api.GET("/plugins", s.PluginsHandler)
	api.POST("/command", s.CommandHandler)
	api.POST("/queue", s.QueueHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) DeviceHandler(c echo.Context) error {
	resp, err := request[domain.GetDeviceInfoResponse](s, domain.GetDeviceInfoRequest{})
	if err != nil {
		return errorJSON(c, http.StatusBadGateway, err)
	}
	return c.JSON(http.StatusOK, DeviceInfoResponse{Info: resp.Info, Sensors: resp.Sensors})
}

func (s *Server) StatusHandler(c echo.Context) error {
	resp, err := request[domain.GetStatusResponse](s, domain.GetStatusRequest{})
	if err != nil {
		return errorJSON(c, http.StatusBadGateway, err)
	}
	return c.JSON(http.StatusOK, resp.Status)
}

func (s *Server) SettingsHandler(c echo.Context) error {
	resp, err := request[domain.GetSettingsResponse](s, domain.GetSettingsRequest{})
	if err != nil {
		return errorJSON(c, http.StatusServiceUnavailable, err)
	}
	return c.JSON(http.StatusOK, resp.Settings)
}

func (s *Server) PluginsHandler(c echo.Context) error {
	plugins := []PluginResponse{}
	if s.plugins != nil {
		for _, p := range s.plugins() {
			plugins = append(plugins, PluginResponse{
				Name:        p.Manifest.Name,
				Alias:       p.Manifest.Alias,
				Version:     p.Manifest.Version,
				Kind:        p.Kind.String(),
				Description: p.Manifest.Description,
				Dir:         p.Dir,
			})
		}
	}
	return c.JSON(http.StatusOK, plugins)
}

// CommandHandler sends a command right away and returns the parsed answer.
func (s *Server) CommandHandler(c echo.Context) error {
	var body CommandBody
	if err := c.Bind(&body); err != nil || body.Command == "" {
		return errorJSON(c, http.StatusBadRequest, voltronic.ErrEmptyCommand)
	}
	resp, err := request[domain.InvokeCommandResponse](s, domain.InvokeCommandRequest{Command: body.Command})
	if err != nil {
		return errorJSON(c, commandErrorStatus(err), err)
	}
	return c.JSON(http.StatusOK, CommandResponse{Command: resp.Command, Result: resp.Result})
}

// QueueHandler puts a command in the pending queue. The result is
// published on MQTT once the command ran.
func (s *Server) QueueHandler(c echo.Context) error {
	var body CommandBody
	if err := c.Bind(&body); err != nil || body.Command == "" {
		return errorJSON(c, http.StatusBadRequest, voltronic.ErrEmptyCommand)
	}
	resp, err := request[domain.QueueCommandResponse](s, domain.QueueCommandRequest{Command: body.Command, Wait: body.Wait})
	if err != nil {
		return errorJSON(c, commandErrorStatus(err), err)
	}
	return c.JSON(http.StatusAccepted, resp.Pending)
}

// request asks the master actor and unwraps the response error.
func request[T domain.ActorResponse](s *Server, msg any) (T, error) {
	var zero T
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, ACTOR_REQUEST_TIMEOUT).Result()
	if err != nil {
		return zero, err
	}
	resp, ok := res.(T)
	if !ok {
		return zero, errors.New("unexpected response")
	}
	if resp.HasResponseError() {
		return zero, resp.GetResponseError()
	}
	return resp, nil
}

func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, voltronic.ErrQueueFull), errors.Is(err, voltronic.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, voltronic.ErrEmptyCommand):
		return http.StatusBadRequest
	case errors.Is(err, voltronic.ErrCommandRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func errorJSON(c echo.Context, status int, err error) error {
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}
