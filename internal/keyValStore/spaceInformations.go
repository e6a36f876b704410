package keyValStore

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// SizeOnDisk returns the total size of all files in the database directory.
func (k *KeyValStore) SizeOnDisk() (int64, error) {
	var size int64
	err := filepath.Walk(k.config.Path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// displayDiskUsage logs the filesystem situation of the database path and
// warns when free space is below the configured minimum. The store still
// opens; running out of disk is Badger's problem to surface per write.
func (k *KeyValStore) displayDiskUsage() {
	usage, err := disk.Usage(k.config.Path)
	if err != nil {
		k.log.WithFields(logrus.Fields{
			"path": k.config.Path,
		}).Errorf("Error retrieving disk usage stats: %v", err)
		return
	}

	freeGB := usage.Free / (1024 * 1024 * 1024)

	k.log.WithFields(logrus.Fields{
		"path":        k.config.Path,
		"freeGB":      freeGB,
		"usedPercent": usage.UsedPercent,
	}).Info("database disk usage")

	if int(freeGB) < k.config.MinimumFreeGB {
		k.log.WithFields(logrus.Fields{
			"freeGB":    freeGB,
			"minimumGB": k.config.MinimumFreeGB,
		}).Warn("free disk space below configured minimum")
	}
}
