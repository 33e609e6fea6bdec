package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/disaster-response/internal/alerts"
	"github.com/mr1hm/disaster-response/internal/models"
	"github.com/mr1hm/disaster-response/internal/repository"
)

const healthTimeout = 2 * time.Second

// GeoService is the aggregator as seen by the HTTP layer.
type GeoService interface {
	Aggregate(ctx context.Context, q models.GeoQuery) models.AggregatedGeoView
	Weather(ctx context.Context, q models.GeoQuery) (*models.WeatherSnapshot, error)
	Seismic(ctx context.Context, q models.GeoQuery) ([]models.SeismicEvent, error)
	Facilities(ctx context.Context, q models.GeoQuery) ([]models.Facility, error)
}

type ReportSubmitter interface {
	Submit(ctx context.Context, in models.ReportInput) (models.Report, error)
}

type AlertSender interface {
	SendAlert(ctx context.Context, phone, message string) error
}

type SubscriptionService interface {
	Subscribe(ctx context.Context, phone string) (models.Subscription, error)
}

// Deps collects the services behind the routes. A nil WS or Metrics
// handler leaves that route unregistered.
type Deps struct {
	Geo           GeoService
	Reports       repository.ReportRepository
	Store         repository.Pinger
	Ingest        ReportSubmitter
	Alerts        AlertSender
	Subscriptions SubscriptionService
	WS            http.Handler
	Metrics       http.Handler
}

type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/weather", h.getWeather)
	r.GET("/api/earthquake", h.getEarthquakes)
	r.GET("/api/hospitals", h.getHospitals)
	r.GET("/api/geo", h.getGeo)
	r.POST("/api/report", h.createReport)
	r.GET("/api/reports", h.getReports)
	r.POST("/api/alert", h.sendAlert)
	r.POST("/api/subscribe", h.subscribe)
	r.GET("/health", h.health)

	if h.deps.WS != nil {
		r.GET("/ws", gin.WrapH(h.deps.WS))
	}
	if h.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.deps.Metrics))
	}
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func (h *Handler) getWeather(c *gin.Context) {
	q, ok := geoQuery(c)
	if !ok {
		return
	}
	snap, err := h.deps.Geo.Weather(c.Request.Context(), q)
	if err != nil {
		slog.Error("error fetching weather", "lat", q.Lat, "lon", q.Lon, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch weather data"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) getEarthquakes(c *gin.Context) {
	q, ok := geoQuery(c)
	if !ok {
		return
	}
	events, err := h.deps.Geo.Seismic(c.Request.Context(), q)
	if err != nil {
		slog.Error("error fetching earthquakes", "lat", q.Lat, "lon", q.Lon, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch earthquake data"})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) getHospitals(c *gin.Context) {
	q, ok := geoQuery(c)
	if !ok {
		return
	}
	facilities, err := h.deps.Geo.Facilities(c.Request.Context(), q)
	if err != nil {
		slog.Error("error fetching hospitals", "lat", q.Lat, "lon", q.Lon, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch hospital data"})
		return
	}
	c.JSON(http.StatusOK, facilities)
}

// getGeo always answers 200 for valid coordinates; failed providers show
// up as error markers inside the view.
func (h *Handler) getGeo(c *gin.Context) {
	q, ok := geoQuery(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.deps.Geo.Aggregate(c.Request.Context(), q))
}

func (h *Handler) createReport(c *gin.Context) {
	var in models.ReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	report, err := h.deps.Ingest.Submit(c.Request.Context(), in)
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Reason})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store report"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Disaster report stored",
		"id":      report.ID,
	})
}

func (h *Handler) getReports(c *gin.Context) {
	reports, err := h.deps.Reports.ListAll(c.Request.Context())
	if err != nil {
		slog.Error("error listing reports", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reports"})
		return
	}

	if c.Query("format") == "geojson" {
		c.Header("Content-Type", "application/geo+json")
		c.JSON(http.StatusOK, toGeoJSON(reports))
		return
	}
	c.JSON(http.StatusOK, reports)
}

type alertRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (h *Handler) sendAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.deps.Alerts.SendAlert(c.Request.Context(), req.Phone, req.Message)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Alert sent"})
	case errors.Is(err, alerts.ErrInvalidPhoneFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, alerts.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "SMS alerts are not configured"})
	default:
		slog.Error("error sending alert", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send alert"})
	}
}

type subscribeRequest struct {
	Phone string `json:"phone"`
}

func (h *Handler) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sub, err := h.deps.Subscriptions.Subscribe(c.Request.Context(), req.Phone)
	if err != nil {
		if errors.Is(err, alerts.ErrInvalidPhoneFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("error storing subscription", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Subscribed to alerts",
		"phone":   sub.Phone,
	})
}

func (h *Handler) health(c *gin.Context) {
	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := h.deps.Store.Ping(ctx); err != nil {
			slog.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// geoQuery reads lat and lon (or lng) from the query string and writes the
// 400 itself when they are missing or out of range.
func geoQuery(c *gin.Context) (models.GeoQuery, bool) {
	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if lonStr == "" {
		lonStr = c.Query("lng")
	}
	if latStr == "" || lonStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Latitude and Longitude are required"})
		return models.GeoQuery{}, false
	}

	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Latitude and Longitude must be numbers"})
		return models.GeoQuery{}, false
	}
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		var ve *models.ValidationError
		errors.As(err, &ve)
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Reason})
		return models.GeoQuery{}, false
	}

	return models.NewGeoQuery(lat, lon), true
}
