// Package handlers serves the pipeline over HTTP.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"galaxy-roi/internal/models"
	"galaxy-roi/internal/sky"
)

// MissingParamsMessage is the body returned when a corner parameter is absent.
const MissingParamsMessage = "Missing query params. Params must be ra1, dec1, ra2, dec2"

var cornerParams = []string{"ra1", "dec1", "ra2", "dec2"}

var errMissingParams = errors.New(MissingParamsMessage)

// parseCorners reads the two frame corners from the query string.
func parseCorners(r *http.Request) (sky.Coordinate, sky.Coordinate, error) {
	q := r.URL.Query()
	values := make([]float64, len(cornerParams))

	for i, name := range cornerParams {
		raw := q.Get(name)
		if raw == "" {
			return sky.Coordinate{}, sky.Coordinate{}, errMissingParams
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return sky.Coordinate{}, sky.Coordinate{}, fmt.Errorf("param %s=%q is not a number: %w", name, raw, models.ErrMalformedInput)
		}
		values[i] = v
	}

	c1 := sky.Coordinate{RA: values[0], Dec: values[1]}
	c2 := sky.Coordinate{RA: values[2], Dec: values[3]}
	if !c1.IsFinite() || !c2.IsFinite() {
		return sky.Coordinate{}, sky.Coordinate{}, fmt.Errorf("corners must be finite: %w", models.ErrMalformedInput)
	}
	return c1, c2, nil
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrServiceFailure):
		return http.StatusBadGateway
	case errors.Is(err, errMissingParams), models.IsClientError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
