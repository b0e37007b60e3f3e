// Package types contains the read-only data shapes mirrored from the benchmark API.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned by ParseRoundStatus for values outside the closed set.
var ErrUnknownStatus = errors.New("unknown round status")

// RoundStatus is the lifecycle phase of a round.
type RoundStatus string

// Round statuses.
const (
	StatusRegistration RoundStatus = "registration"
	StatusActive       RoundStatus = "active"
	StatusCompleted    RoundStatus = "completed"
	StatusCancelled    RoundStatus = "cancelled"
)

// RoundStatuses lists every status in display order.
var RoundStatuses = []RoundStatus{StatusActive, StatusRegistration, StatusCompleted, StatusCancelled}

// ParseRoundStatus normalises s into a RoundStatus.
func ParseRoundStatus(s string) (RoundStatus, error) {
	st := RoundStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusRegistration, StatusActive, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Started reports whether a round has left registration and may carry results.
func (s RoundStatus) Started() bool {
	return s != StatusRegistration
}

// ChallengeDefinition describes a recurring challenge type.
type ChallengeDefinition struct {
	ID                    int     `json:"id" validate:"gt=0"`
	ScheduleID            string  `json:"schedule_id"`
	Name                  string  `json:"name" validate:"required"`
	Description           string  `json:"description"`
	Domain                *string `json:"domain"`
	Subdomain             *string `json:"subdomain"`
	ContextLength         int     `json:"context_length"`
	Horizon               string  `json:"horizon"`
	Frequency             string  `json:"frequency"`
	NextRegistrationStart *string `json:"next_registration_start,omitempty"`
	NextRegistrationEnd   *string `json:"next_registration_end,omitempty"`
}

// Round is one concrete instance of a challenge definition.
type Round struct {
	ID                int         `json:"round_id" validate:"gt=0"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	Status            RoundStatus `json:"status" validate:"oneof=registration active completed cancelled"`
	ContextLength     int         `json:"context_length"`
	Horizon           string      `json:"horizon"`
	Frequency         string      `json:"frequency,omitempty"`
	StartTime         string      `json:"start_time"`
	EndTime           string      `json:"end_time"`
	RegistrationStart string      `json:"registration_start"`
	RegistrationEnd   string      `json:"registration_end"`
	Domains           []string    `json:"domains,omitempty"`
	Categories        []string    `json:"categories,omitempty"`
	Subcategories     []string    `json:"subcategories,omitempty"`
}

// Series is one time series evaluated within a round.
type Series struct {
	ID                int     `json:"series_id" validate:"gt=0"`
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Frequency         *string `json:"frequency"`
	Horizon           any     `json:"horizon"`
	EndpointPrefix    *string `json:"endpoint_prefix"`
	StartTime         *string `json:"start_time"`
	EndTime           *string `json:"end_time"`
	RegistrationStart *string `json:"registration_start"`
	RegistrationEnd   *string `json:"registration_end"`
	ContextStartTime  *string `json:"context_start_time"`
	ContextEndTime    *string `json:"context_end_time"`
	Domain            *string `json:"domain"`
	Category          *string `json:"category"`
	Subcategory       *string `json:"subcategory"`
}

// DisplayName returns the series name or a positional fallback.
func (s Series) DisplayName() string {
	if s.Name != nil && *s.Name != "" {
		return *s.Name
	}
	return fmt.Sprintf("Series %d", s.ID)
}

// DataPoint is one observed value.
type DataPoint struct {
	TS    string  `json:"ts" validate:"required"`
	Value float64 `json:"value"`
}

// TimeSeriesData wraps observed points.
type TimeSeriesData struct {
	Data []DataPoint `json:"data" validate:"dive"`
}

// ForecastPoint is one predicted value with an optional confidence interval keyed by quantile.
type ForecastPoint struct {
	TS string             `json:"ts" validate:"required"`
	Y  float64            `json:"y"`
	CI map[string]float64 `json:"ci,omitempty"`
}

// ForecastData is the forecast line produced by one model.
type ForecastData struct {
	Data         []ForecastPoint `json:"data" validate:"dive"`
	Label        string          `json:"label"`
	CurrentMASE  *float64        `json:"current_mase,omitempty"`
	ModelID      string          `json:"model_id,omitempty"`
	ModelSize    *float64        `json:"model_size,omitempty"`
	Architecture string          `json:"architecture,omitempty"`
}

// ForecastsResponse maps a model key to its forecast.
type ForecastsResponse struct {
	Forecasts map[string]ForecastData `json:"forecasts" validate:"dive"`
}

// Model is a forecasting model registered to compete.
type Model struct {
	ReadableID      string   `json:"readable_id" validate:"required"`
	Name            string   `json:"name"`
	ModelFamily     string   `json:"model_family,omitempty"`
	ModelSize       *float64 `json:"model_size,omitempty"`
	Architecture    string   `json:"architecture,omitempty"`
	PretrainingData string   `json:"pretraining_data,omitempty"`
	PublishingDate  string   `json:"publishing_date,omitempty"`
	Hosting         string   `json:"hosting,omitempty"`
	Description     string   `json:"description,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

// ModelsResponse lists the models that take part in a round.
type ModelsResponse struct {
	Models []Model `json:"models" validate:"dive"`
}

// UnmarshalJSON accepts both a bare array of models and the {"models": [...]} envelope.
func (m *ModelsResponse) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &m.Models)
	}
	type envelope ModelsResponse
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	*m = ModelsResponse(env)
	return nil
}

// LeaderboardEntry is the per (model, series) result row of a round.
type LeaderboardEntry struct {
	ModelID       int      `json:"model_id"`
	ReadableID    string   `json:"readable_id"`
	ModelName     string   `json:"model_name"`
	SeriesID      int      `json:"series_id"`
	SeriesName    string   `json:"series_name"`
	ForecastCount int      `json:"forecast_count"`
	MASE          *float64 `json:"mase"`
	RMSE          *float64 `json:"rmse"`
	IsFinal       bool     `json:"is_final"`
	Rank          *int     `json:"rank"`
}

// RankingEntry is a point-in-time ranking snapshot of one model within a scope.
type RankingEntry struct {
	ModelID          int      `json:"model_id"`
	ModelName        string   `json:"model_name"`
	ReadableID       string   `json:"readable_id"`
	Username         string   `json:"username,omitempty"`
	OrganizationName string   `json:"organization_name"`
	Architecture     *string  `json:"architecture,omitempty"`
	ModelSize        *float64 `json:"model_size,omitempty"`
	EloMedian        float64  `json:"elo_rating_median"`
	EloCILower       float64  `json:"elo_ci_lower"`
	EloCIUpper       float64  `json:"elo_ci_upper"`
	AvgMASE          *float64 `json:"avg_mase"`
	MASEStd          *float64 `json:"mase_std"`
	EvaluatedCount   *int     `json:"evaluated_count"`
	MatchesPlayed    int      `json:"matches_played"`
	RankPosition     int      `json:"rank_position" validate:"gt=0"`
	CalculationDate  string   `json:"calculation_date,omitempty"`
}

// ErrInvalidInterval reports a confidence interval whose bounds do not enclose the median.
var ErrInvalidInterval = errors.New("elo interval does not enclose median")

// EloCI returns the upper and lower distance from the median to the interval bounds.
func (r RankingEntry) EloCI() (upper, lower float64, err error) {
	if r.EloCILower > r.EloMedian || r.EloMedian > r.EloCIUpper {
		return 0, 0, fmt.Errorf("%w: model %d", ErrInvalidInterval, r.ModelID)
	}
	return r.EloCIUpper - r.EloMedian, r.EloMedian - r.EloCILower, nil
}

// RankingsResponse is the upstream rankings payload.
type RankingsResponse struct {
	Rankings       []RankingEntry `json:"rankings" validate:"dive"`
	FiltersApplied map[string]any `json:"filters_applied,omitempty"`
}

// DefinitionRef names a definition in filter options.
type DefinitionRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CalculationDate is a date rankings were computed for.
type CalculationDate struct {
	CalculationDate string `json:"calculation_date" validate:"required"`
	IsMonthEnd      bool   `json:"is_month_end"`
}

// RankingFilterOptions lists the scopes and dates rankings can be requested for.
type RankingFilterOptions struct {
	Definitions       []DefinitionRef   `json:"definitions"`
	FrequencyHorizons []string          `json:"frequency_horizons"`
	CalculationDates  []CalculationDate `json:"calculation_dates,omitempty" validate:"dive"`
}

// DefinitionRound is a round as listed under its definition.
type DefinitionRound struct {
	ID                int         `json:"id"`
	RoundName         string      `json:"round_name"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	Status            RoundStatus `json:"status"`
	RegistrationStart string      `json:"registration_start"`
	RegistrationEnd   string      `json:"registration_end"`
	StartTime         string      `json:"start_time"`
	EndTime           string      `json:"end_time"`
	ContextLength     int         `json:"context_length"`
	Horizon           string      `json:"horizon"`
	Frequency         string      `json:"frequency"`
	ModelCount        *int        `json:"model_count,omitempty"`
	ForecastCount     *int        `json:"forecast_count,omitempty"`
	Domains           []string    `json:"domains"`
	Categories        []string    `json:"categories"`
	Subcategories     []string    `json:"subcategories"`
}

// PaginationInfo is the upstream pagination envelope.
type PaginationInfo struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// DefinitionRoundsResponse is one page of rounds under a definition.
type DefinitionRoundsResponse struct {
	Items      []DefinitionRound `json:"items"`
	Pagination PaginationInfo    `json:"pagination"`
}
