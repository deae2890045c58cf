//go:build !giouring

package nvmeuring

import "fmt"

// NewGiouringRing is unavailable without the "giouring" build tag; build
// with -tags giouring to use the real io_uring binding instead of the
// syscall-only minimal ring.
func NewGiouringRing(config Config) (Ring, error) {
	return nil, fmt.Errorf("nvmeuring: built without giouring support; rebuild with -tags giouring")
}
