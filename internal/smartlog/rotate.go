package smartlog

import (
	"fmt"
	"os"
)

// maxRotatedSiblings bounds how many numbered rotations a single day's
// file keeps before the oldest is evicted.
const maxRotatedSiblings = 5

// rotateIfNeeded renames path to path+".1" (shifting any existing
// path+".N" up to path+".N+1", dropping anything past
// maxRotatedSiblings) when path's current size is at or above capBytes.
// A path that doesn't exist yet needs no rotation.
func rotateIfNeeded(path string, capBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("smartlog: stat history file: %w", err)
	}
	if info.Size() < capBytes {
		return nil
	}

	oldest := fmt.Sprintf("%s.%d", path, maxRotatedSiblings)
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			return fmt.Errorf("smartlog: evict oldest rotation: %w", err)
		}
	}

	for n := maxRotatedSiblings - 1; n >= 1; n-- {
		src := fmt.Sprintf("%s.%d", path, n)
		dst := fmt.Sprintf("%s.%d", path, n+1)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("smartlog: rotate %s: %w", src, err)
		}
	}

	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("smartlog: rotate current history file: %w", err)
	}
	return nil
}
