package window

import "time"

// Chunk splits [begin, end) into consecutive windows of chunkSize. Only full
// chunks are returned and at most maxChunks of them; a non-positive maxChunks
// means no limit.
func Chunk(begin, end time.Time, chunkSize time.Duration, maxChunks int) []Window {
	if chunkSize <= 0 {
		return nil
	}
	chunkStart := begin.Truncate(time.Second).UTC()
	chunkEnd := chunkStart.Add(chunkSize)

	disableMax := maxChunks <= 0

	var windows []Window
	for i := 0; disableMax || i < maxChunks; i++ {
		// Do not collect data after end
		if chunkEnd.After(end) {
			break
		}
		windows = append(windows, Window{Start: chunkStart, End: chunkEnd})
		chunkStart = chunkEnd
		chunkEnd = chunkStart.Add(chunkSize)
	}
	return windows
}

// HourlyRanges returns the 24 one-hour sub-windows of a period, in order.
func HourlyRanges(p Period) []Window {
	return Chunk(p.Start, p.End, time.Hour, 24)
}
