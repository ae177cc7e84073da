package cerr

import (
	"errors"
	"fmt"

	"github.com/860844175/review-system/pkg/storage"
)

// WrapStorageReadError maps a storage read failure to NotFound or Internal.
// sentinel, when non-nil, is joined so callers can errors.Is on a
// domain-level error as well.
func WrapStorageReadError(target string, err error, sentinel error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Internal, "server error", join(sentinel, fmt.Errorf("failed to read %s: %w", target, err)))
}

func WrapStorageWriteError(target string, err error, sentinel error) error {
	return NewError(Internal, "server error", join(sentinel, fmt.Errorf("failed to write %s: %w", target, err)))
}

func WrapStorageDeleteError(target string, err error, sentinel error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Internal, "server error", join(sentinel, fmt.Errorf("failed to delete %s: %w", target, err)))
}

func join(sentinel, err error) error {
	if sentinel == nil {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
