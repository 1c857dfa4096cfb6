package server

import (
	"math"
	"net/http"
	"time"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/gin-gonic/gin"
)

type predictRequest struct {
	DistanceKm      *float64 `json:"distance_km" binding:"required,gt=0"`
	DurationMins    *float64 `json:"duration_mins"`
	Hour            *int     `json:"hour" binding:"omitempty,min=0,max=23"`
	DayOfWeek       *int     `json:"day_of_week" binding:"omitempty,min=0,max=6"`
	TransportType   string   `json:"transport_type" binding:"required"`
	ServiceProvider string   `json:"service_provider" binding:"required"`
}

type predictResponse struct {
	PredictedFare   float64 `json:"predicted_fare"`
	DistanceKm      float64 `json:"distance_km"`
	DurationMins    float64 `json:"duration_mins"`
	TransportType   string  `json:"transport_type"`
	ServiceProvider string  `json:"service_provider"`
	Hour            int     `json:"hour"`
	DayOfWeek       int     `json:"day_of_week"`
}

type bestTimeRequest struct {
	DistanceKm      *float64 `json:"distance_km" binding:"required,gt=0"`
	TransportType   string   `json:"transport_type"`
	ServiceProvider string   `json:"service_provider"`
	HoursAhead      *int     `json:"hours_ahead" binding:"omitempty,min=1,max=168"`
}

type slotResponse struct {
	Hour       int     `json:"hour"`
	DateTime   string  `json:"datetime"`
	Fare       float64 `json:"fare"`
	IsRushHour bool    `json:"is_rush_hour"`
}

type bestTimeResponse struct {
	CurrentFare    *float64       `json:"current_fare"`
	BestTime       string         `json:"best_time"`
	BestHour       int            `json:"best_hour"`
	BestFare       float64        `json:"best_fare"`
	Savings        float64        `json:"savings"`
	WaitHours      int            `json:"wait_hours"`
	AllPredictions []slotResponse `json:"all_predictions"`
}

type batchRequest struct {
	DistanceKm       *float64 `json:"distance_km" binding:"required,gt=0"`
	DurationMins     *float64 `json:"duration_mins"`
	Hour             *int     `json:"hour" binding:"omitempty,min=0,max=23"`
	DayOfWeek        *int     `json:"day_of_week" binding:"omitempty,min=0,max=6"`
	TransportTypes   []string `json:"transport_types" binding:"omitempty,dive,required"`
	ServiceProviders []string `json:"service_providers" binding:"omitempty,dive,required"`
}

type batchResponse struct {
	DistanceKm  float64                `json:"distance_km"`
	Predictions []fare.BatchPrediction `json:"predictions"`
}

type modelInfoResponse struct {
	ModelLoaded bool          `json:"model_loaded"`
	Version     string        `json:"version"`
	Metadata    fare.Metadata `json:"metadata"`
	Features    []string      `json:"features"`
}

// round2 rounds a fare for presentation.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Health reports liveness and whether a bundle is loaded.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": s.model.IsTrained(),
		"service":      s.opts.Service,
	})
}

// Predict estimates one fare.
func (s *Server) Predict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	fareValue, rec, err := s.model.PredictQuery(fare.Query{
		DistanceKm:      *req.DistanceKm,
		DurationMins:    req.DurationMins,
		Hour:            req.Hour,
		DayOfWeek:       req.DayOfWeek,
		TransportType:   req.TransportType,
		ServiceProvider: req.ServiceProvider,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, predictResponse{
		PredictedFare:   round2(fareValue),
		DistanceKm:      rec.DistanceKm,
		DurationMins:    rec.DurationMins,
		TransportType:   rec.TransportType,
		ServiceProvider: rec.ServiceProvider,
		Hour:            rec.Hour,
		DayOfWeek:       rec.DayOfWeek,
	})
}

// BestTime recommends the cheapest hour to book within the horizon.
func (s *Server) BestTime(c *gin.Context) {
	var req bestTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	q := fare.BestTimeQuery{
		DistanceKm:      *req.DistanceKm,
		TransportType:   req.TransportType,
		ServiceProvider: req.ServiceProvider,
		HoursAhead:      s.opts.DefaultHoursAhead,
	}
	if q.TransportType == "" {
		q.TransportType = s.opts.DefaultTransport
	}
	if q.ServiceProvider == "" {
		q.ServiceProvider = s.opts.DefaultProvider
	}
	if req.HoursAhead != nil {
		q.HoursAhead = *req.HoursAhead
	}

	rec, err := s.model.PredictBestTime(q)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := bestTimeResponse{
		BestTime:       rec.BestTime.Format(time.RFC3339),
		BestHour:       rec.BestHour,
		BestFare:       round2(rec.BestFare),
		Savings:        round2(rec.Savings),
		WaitHours:      rec.WaitHours,
		AllPredictions: make([]slotResponse, len(rec.Predictions)),
	}
	if rec.CurrentFare != nil {
		current := round2(*rec.CurrentFare)
		resp.CurrentFare = &current
	}
	for i, p := range rec.Predictions {
		resp.AllPredictions[i] = slotResponse{
			Hour:       p.Hour,
			DateTime:   p.Time.Format(time.RFC3339),
			Fare:       round2(p.Fare),
			IsRushHour: p.IsRushHour,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// BatchPredict predicts every transport × provider combination.
func (s *Server) BatchPredict(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	transports := req.TransportTypes
	if len(transports) == 0 {
		transports = s.opts.BatchTransports
	}
	providers := req.ServiceProviders
	if len(providers) == 0 {
		providers = s.opts.BatchProviders
	}

	base := fare.Query{
		DistanceKm:   *req.DistanceKm,
		DurationMins: req.DurationMins,
		Hour:         req.Hour,
		DayOfWeek:    req.DayOfWeek,
	}.Resolve(s.model.Now())

	preds, err := s.model.PredictBatch(base, transports, providers)
	if err != nil {
		s.writeError(c, err)
		return
	}
	for i := range preds {
		preds[i].Fare = round2(preds[i].Fare)
	}
	c.JSON(http.StatusOK, batchResponse{DistanceKm: base.DistanceKm, Predictions: preds})
}

// ModelInfo returns metadata of the live bundle.
func (s *Server) ModelInfo(c *gin.Context) {
	b, err := s.model.Bundle()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, modelInfoResponse{
		ModelLoaded: true,
		Version:     b.Version,
		Metadata:    b.Metadata,
		Features:    b.FeatureColumns,
	})
}
