package ads

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidField is returned when a bitfield value, register pointer or
	// threshold bit index is outside its domain. Nothing is written to the bus.
	ErrInvalidField = errors.New("ads: invalid field")
	// ErrNotReady is returned when no completed conversion is available yet.
	// Poll again.
	ErrNotReady = errors.New("ads: conversion not ready")
	// ErrDeviceAbsent is returned when the connection probe is not acknowledged.
	ErrDeviceAbsent = errors.New("ads: device absent")
)

func invalid(field string, v any) error {
	return fmt.Errorf("%w: %s %v", ErrInvalidField, field, v)
}
