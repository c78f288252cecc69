package domain

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrAnomalyNotFound        = errors.New("anomaly not found")
	ErrRecommendationNotFound = errors.New("recommendation not found")
	ErrBillExists             = errors.New("bill number already exists")
	ErrBillNotFound           = errors.New("bill not found")
	ErrSnapshotNotFound       = errors.New("sensor snapshot not found")
)
