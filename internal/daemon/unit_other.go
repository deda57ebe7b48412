//go:build !linux

package daemon

import (
	"context"
	"errors"
	"time"
)

var ErrUnsupported = errors.New("daemon: systemd is only available on linux")

type UnitStatus struct {
	Name        string
	Active      string
	SubState    string
	LoadState   string
	Description string
	Since       time.Time
}

func (u UnitStatus) Found() bool { return false }

func QueryUnit(ctx context.Context, unit string) (*UnitStatus, error) {
	return nil, ErrUnsupported
}
