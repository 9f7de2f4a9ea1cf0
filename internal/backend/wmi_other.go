//go:build !windows

package backend

// OpenWMI is only available on Windows.
func OpenWMI() (*WMI, error) {
	return nil, ErrUnavailable
}
