//go:build linux

package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitStatus is the systemd view of a service unit.
type UnitStatus struct {
	Name        string
	Active      string
	SubState    string
	LoadState   string
	Description string
	// Since is when the unit last entered its current active/inactive state.
	Since time.Time
}

func (u UnitStatus) Found() bool { return u.LoadState != "" && u.LoadState != "not-found" }

// QueryUnit asks the system manager over D-Bus for the state of unit
// ("reportd" or "reportd.service").
func QueryUnit(ctx context.Context, unit string) (*UnitStatus, error) {
	unitName := unitFile(unit)
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("systemd: %w", err)
	}
	defer conn.Close()

	st := &UnitStatus{Name: unitName}
	units, err := conn.ListUnitsByPatternsContext(ctx, nil, []string{unitName})
	if err == nil && len(units) > 0 {
		u := units[0]
		for _, x := range units {
			if x.Name == unitName {
				u = x
				break
			}
		}
		st.Active, st.SubState, st.LoadState, st.Description = u.ActiveState, u.SubState, u.LoadState, u.Description
	}

	props, err := conn.GetUnitPropertiesContext(ctx, unitName)
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchUnit") {
			st.LoadState = "not-found"
			return st, nil
		}
		if st.LoadState != "" {
			return st, nil
		}
		return nil, fmt.Errorf("systemd: status of %s: %w", unitName, err)
	}
	if st.LoadState == "" {
		st.Active = propString(props, "ActiveState")
		st.SubState = propString(props, "SubState")
		st.LoadState = propString(props, "LoadState")
		st.Description = propString(props, "Description")
	}
	key := "InactiveEnterTimestamp"
	if st.Active == "active" {
		key = "ActiveEnterTimestamp"
	}
	st.Since = propTime(props, key)
	return st, nil
}

func unitFile(unit string) string {
	unit = strings.TrimSpace(unit)
	if !strings.Contains(unit, ".") {
		unit += ".service"
	}
	return unit
}

func propString(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}

// propTime decodes a systemd timestamp (microseconds since the epoch).
func propTime(props map[string]interface{}, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}
