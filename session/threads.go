package session

import "github.com/TienVM2004/mai-live/internal/types"

// UnknownSpeaker labels segments the server did not attribute.
const UnknownSpeaker = "Unknown"

// Threads partitions a timestamp-ordered transcript by speaker: one thread
// per speaker holding all of their segments in order, threads ordered by
// each speaker's earliest segment. Pure derivation with a stable result, so
// recomputing after any store update is cheap and deterministic.
func Threads(segments []types.Segment) []types.Thread {
	var threads []types.Thread
	index := make(map[string]int)

	for _, seg := range segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = UnknownSpeaker
		}
		i, ok := index[speaker]
		if !ok {
			i = len(threads)
			index[speaker] = i
			threads = append(threads, types.Thread{Speaker: speaker})
		}
		threads[i].Segments = append(threads[i].Segments, seg)
	}
	return threads
}
