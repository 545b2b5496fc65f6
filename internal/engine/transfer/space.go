package transfer

import (
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/surge-downloader/sdm/internal/utils"
)

// CheckFreeSpace fails with ErrInsufficientSpace when the volume holding
// dest cannot take need more bytes. Volumes whose usage cannot be read
// are not checked.
func CheckFreeSpace(dest string, need int64) error {
	if need <= 0 {
		return nil
	}

	usage, err := disk.Usage(filepath.Dir(dest))
	if err != nil {
		utils.Debug("Free space check skipped for %s: %v", dest, err)
		return nil
	}

	if usage.Free < uint64(need) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientSpace,
			utils.ConvertBytesToHumanReadable(need),
			utils.ConvertBytesToHumanReadable(int64(usage.Free)))
	}
	return nil
}
