package safe

import (
	"errors"
	"fmt"
)

// MaxSide bounds either side of a Mat. Wide-field frames never exceed 2048.
const MaxSide = 16384

// ErrInvalidMat is wrapped by every validation failure in this package.
var ErrInvalidMat = errors.New("invalid mat")

func ValidateMatForOperation(mat *Mat, operation string) error {
	switch {
	case mat == nil:
		return fmt.Errorf("%s: %w: nil", operation, ErrInvalidMat)
	case !mat.IsValid():
		return fmt.Errorf("%s: %w: closed", operation, ErrInvalidMat)
	case mat.Empty():
		return fmt.Errorf("%s: %w: empty", operation, ErrInvalidMat)
	}
	return ValidateDimensions(mat.Cols(), mat.Rows(), operation)
}

// ValidateChannels checks the Mat has exactly the expected channel count.
func ValidateChannels(mat *Mat, want int, operation string) error {
	if err := ValidateMatForOperation(mat, operation); err != nil {
		return err
	}
	if got := mat.Channels(); got != want {
		return fmt.Errorf("%s: %w: want %d channels, got %d", operation, ErrInvalidMat, want, got)
	}
	return nil
}

func ValidateDimensions(width, height int, operation string) error {
	if width <= 0 || height <= 0 || width > MaxSide || height > MaxSide {
		return fmt.Errorf("%s: %w: dimensions %dx%d", operation, ErrInvalidMat, width, height)
	}
	return nil
}
