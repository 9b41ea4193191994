package storage

import "os"

// DiskUsage returns the on-disk size of the history database, including its
// WAL and shared-memory files. An in-memory database reports 0.
func (s *SQLiteStore) DiskUsage() (int64, error) {
	if s.path == MemoryPath {
		return 0, nil
	}
	return fileSizes(s.path, s.path+"-wal", s.path+"-shm")
}

// fileSizes sums the sizes of paths. Missing files count as 0.
func fileSizes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
		}
	}
	return total, nil
}
