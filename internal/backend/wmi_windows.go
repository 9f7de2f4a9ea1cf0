//go:build windows

package backend

import (
	"fmt"

	"github.com/yusufpapurcu/wmi"
)

type wmiClient struct{}

func (wmiClient) Query(query string, dst any) error {
	return wmi.QueryNamespace(query, dst, wmiNamespace)
}

// OpenWMI checks that the battery classes are reachable.
func OpenWMI() (*WMI, error) {
	w := newWMI(wmiClient{})
	var rows []batteryStaticData
	if err := w.q.Query("SELECT InstanceName FROM BatteryStaticData", &rows); err != nil {
		return nil, fmt.Errorf("query %s: %w", wmiNamespace, err)
	}
	return w, nil
}
