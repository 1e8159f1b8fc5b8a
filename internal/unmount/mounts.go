package unmount

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// SystemMountLister queries the live OS partition table on every call, per
// the contract that mountpoint gates are consulted fresh, never cached.
type SystemMountLister struct{}

// MountpointsFor returns every mountpoint whose backing device matches
// osName (e.g. "/dev/sda1" for osName "sda").
func (SystemMountLister) MountpointsFor(osName string) ([]string, error) {
	partitions, err := disk.PartitionsWithContext(context.Background(), false)
	if err != nil {
		return nil, err
	}
	var mountpoints []string
	for _, p := range partitions {
		if deviceMatches(p.Device, osName) {
			mountpoints = append(mountpoints, p.Mountpoint)
		}
	}
	return mountpoints, nil
}

// deviceMatches reports whether a partition device path (e.g.
// "/dev/sda1", "/dev/nvme0n1p2") belongs to osName, which callers may pass
// either as a bare base name ("sda") or a full device path ("/dev/sda").
func deviceMatches(partitionDevice, osName string) bool {
	base := strings.TrimPrefix(partitionDevice, "/dev/")
	target := strings.TrimPrefix(osName, "/dev/")
	return strings.HasPrefix(base, target)
}
