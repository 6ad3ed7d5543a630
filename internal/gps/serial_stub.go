//go:build !linux

package gps

import (
	"os"

	"github.com/pkg/errors"
)

func openSerial(path string, baud int) (*os.File, error) {
	return nil, errors.Errorf("gps serial %s not supported on this platform", path)
}
