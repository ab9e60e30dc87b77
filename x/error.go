/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

// This file contains some functions for error handling.
// Some common use cases are:
// (1) You receive an error from external lib, and would like to check/log fatal.
//     For this, use x.Check, x.Checkf. If you want to check for boolean being true,
//     use x.AssertTrue, x.AssertTruef. These are meant for startup code and
//     internal invariants, never for caller input.
// (2) You receive an error from a backing store and would like to pass it on. Use
//     x.StoreErr, which keeps the cause reachable through errors.Is / errors.As.
// (3) You want to reject caller input. Wrap one of the sentinels below with
//     errors.Wrapf so that callers can match on the kind.

import (
	"fmt"
	"log"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned for malformed identifiers, levels, depths,
	// geometries and policies.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOutOfRange is returned when navigating to a level the zone cannot reach.
	ErrOutOfRange = errors.New("level out of range")
	// ErrTransform is returned when a position cannot be reprojected.
	ErrTransform = errors.New("coordinate transform failed")
	// ErrClosed is returned by any operation on a closed index or mapper.
	ErrClosed = errors.New("index is closed")
	// ErrStoreIndex matches every StoreIndexError.
	ErrStoreIndex = errors.New("store index failure")
)

// StoreIndexError wraps a failure of the backing store of an index or mapper.
type StoreIndexError struct {
	Op  string
	Err error
}

func (e *StoreIndexError) Error() string {
	return fmt.Sprintf("store index: %s: %v", e.Op, e.Err)
}

// Unwrap returns the original cause.
func (e *StoreIndexError) Unwrap() error { return e.Err }

// Cause is the pkg/errors spelling of Unwrap.
func (e *StoreIndexError) Cause() error { return e.Err }

// Is lets errors.Is(err, ErrStoreIndex) hold for every store failure.
func (e *StoreIndexError) Is(target error) bool { return target == ErrStoreIndex }

// StoreErr wraps err as a StoreIndexError. It returns nil if err is nil.
func StoreErr(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if se := (*StoreIndexError)(nil); errors.As(err, &se) {
		return err
	}
	return &StoreIndexError{Op: fmt.Sprintf(format, args...), Err: err}
}

// Invalidf returns an ErrInvalidArgument carrying a message.
func Invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// Check logs fatal if err != nil.
func Check(err error) {
	if err != nil {
		err = errors.Wrap(err, "")
		log.Fatalf("%+v", err)
	}
}

// Checkf is Check with extra info.
func Checkf(err error, format string, args ...interface{}) {
	if err != nil {
		err = errors.Wrapf(err, format, args...)
		log.Fatalf("%+v", err)
	}
}

// Ignore function is used to ignore errors deliberately, while keeping the
// linter happy.
func Ignore(_ error) {
	// Do nothing.
}

// AssertTruef is AssertTrue with extra info.
func AssertTruef(b bool, format string, args ...interface{}) {
	if !b {
		log.Fatalf("%+v", errors.Errorf(format, args...))
	}
}

// Fatalf logs fatal.
func Fatalf(format string, args ...interface{}) {
	log.Fatalf("%+v", errors.Errorf(format, args...))
}
