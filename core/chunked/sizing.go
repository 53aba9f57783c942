package chunked

import "data-reconciler/core/datasets"

const (
	// MinChunkSize is the floor below which windows are never shrunk.
	MinChunkSize = 1000

	baseExcel   = 10000
	baseCSV     = 50000
	baseParquet = 100000
	baseDefault = 25000

	gib = int64(1) << 30
)

// Override picks the configured window size: the dataset's own chunk_size
// when positive, else the engine-wide one. Zero leaves sizing to ChunkSize.
func Override(datasetSize, engineSize int) int {
	if datasetSize > 0 {
		return datasetSize
	}
	return engineSize
}

// ChunkSize returns the window size for a source. Spreadsheets cannot be
// streamed and get the smallest base; wide rows and very large sources shrink
// the window further. A positive override wins outright.
func ChunkSize(format datasets.Format, columns int, sizeBytes int64, override int) int {
	if override > 0 {
		return override
	}

	size := baseDefault
	switch format {
	case datasets.FormatExcel:
		size = baseExcel
	case datasets.FormatCSV:
		size = baseCSV
	case datasets.FormatParquet:
		size = baseParquet
	}

	switch {
	case columns > 200:
		size /= 4
	case columns > 100:
		size /= 2
	}

	switch {
	case sizeBytes > 5*gib:
		size /= 4
	case sizeBytes > gib:
		size /= 2
	}

	if size < MinChunkSize {
		size = MinChunkSize
	}
	return size
}

// Windows returns the number of windows needed to cover total rows.
func Windows(total int64, size int) int64 {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + int64(size) - 1) / int64(size)
}
