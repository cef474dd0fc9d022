// Package store holds the sliding-window sample archive that the HLS and
// fMP4 layers read from: per-track ring buffers, segment/part derivation,
// eviction, and the watch bus that wakes blocking manifest requests.
package store

import (
	"errors"
	"sync"
)

// ArchiveLimit bounds how much media time (at the 90kHz MPEG-TS timebase)
// a track's ring buffer retains. A package-level var, not a const, so the
// config package can override the default before the first track is
// allocated (see cmd/lowly).
var ArchiveLimit int64 = 3600 * 90000 // one hour

// SegDurationPts is the nominal duration, in 90kHz ticks, of one segment.
// It is used only to decide the "recent tail" window that advertises parts
// (has_parts); individual video segments are not actually this length,
// since they run IDR-to-IDR.
const SegDurationPts int64 = 172800 // 1.92s

// VideoSamplesPerPart is the number of video samples grouped into one part.
// A var for the same reason as ArchiveLimit.
var VideoSamplesPerPart = 8

// AACSamplesPerSegment is the fixed number of ADTS frames per audio segment.
const AACSamplesPerSegment = 90

// AudioFramesPerPart is the fixed number of ADTS frames per audio part.
const AudioFramesPerPart = 15

// Sentinel errors, mapped to HTTP status by the hls package.
var (
	ErrBadSampleTime     = errors.New("store: dts is not a segment boundary")
	ErrNoSegments        = errors.New("store: track has no segments yet")
	ErrNoPartsForSegment = errors.New("store: segment is outside the recent-parts window")
	ErrBuilderFailure    = errors.New("store: internal inconsistency building fMP4")
	ErrUnknownTrack      = errors.New("store: unknown track id")
)

// TrackID is an opaque, densely allocated track identifier.
type TrackID int

// Sample is one immutable coded unit belonging to a track.
type Sample struct {
	Dts   int64
	Pts   int64
	Data  []byte
	IsIDR bool // meaningful for video samples only
}

// TrackSequence is the value broadcast on a track's watch bus after every
// append: the media-sequence-number of the newest segment (which may still
// be in progress) and the index of its latest complete part.
type TrackSequence struct {
	Seg  uint64
	Part uint16
}

// SegmentInfo describes one segment visible in the buffer.
type SegmentInfo struct {
	Dts        int64
	Seq        uint64
	Duration   *int64 // nil for the still-open current segment
	Continuous bool
}

// PartInfo describes one part inside a segment.
type PartInfo struct {
	PartID      int
	Dts         int64
	Duration    *int64
	Continuous  bool
	Independent bool
}

// Track is the read surface shared by AVC and AAC tracks, used by the HLS
// manifest renderer and the fMP4 segment builder.
type Track interface {
	ID() TrackID
	Segments() []SegmentInfo
	SegmentSamples(dts int64) ([]Sample, error)
	Parts(dts int64) ([]PartInfo, error)
	HasParts(dts int64) bool
	SegmentNumberFor(dts int64) (uint64, error)
	PartNumberFor(dts int64, partID int) (uint64, error)
	MediaSequenceNumber() uint64
	Watch() *Bus
}

// Store is the thread-safe facade over all tracks. Store.mu guards the
// track list itself (allocation and lookup); each AVCTrack/AACTrack then
// guards its own sample ring with its own mutex, since ingest pushes and
// HTTP reads of a track's samples run concurrently far more often than the
// track list changes. Callers that need to block (manifest long-poll) must
// read what they need, release any guard, and only then subscribe to a
// track's Bus -- see hls.Server.serveMedia.
type Store struct {
	mu     sync.Mutex
	tracks []Track
	byID   map[TrackID]Track

	hasPtsToUTC bool
	ptsToUTC    int64 // offset in 90kHz ticks, added to a media dts to get wall time
}

// New returns an empty Store.
func New() *Store {
	return &Store{byID: make(map[TrackID]Track)}
}

func (s *Store) nextID() TrackID {
	return TrackID(len(s.tracks) + 1)
}

// AllocateAVCTrack registers a new H.264 track and returns its id.
func (s *Store) AllocateAVCTrack(spsBytes, ppsBytes []byte, maxBitrate *uint32) (TrackID, *AVCTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID()
	t, err := newAVCTrack(id, spsBytes, ppsBytes, maxBitrate)
	if err != nil {
		return 0, nil, err
	}
	s.tracks = append(s.tracks, t)
	s.byID[id] = t
	return id, t, nil
}

// AllocateAACTrack registers a new AAC track and returns its id.
func (s *Store) AllocateAACTrack(audioObjectType uint8, freqIndex uint8, channelConfig uint8, maxBitrate *uint32) (TrackID, *AACTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID()
	t := newAACTrack(id, audioObjectType, freqIndex, channelConfig, maxBitrate)
	s.tracks = append(s.tracks, t)
	s.byID[id] = t
	return id, t
}

// AddAVCSample appends a video sample to the named track.
func (s *Store) AddAVCSample(id TrackID, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id].(*AVCTrack)
	if !ok {
		return ErrUnknownTrack
	}
	t.push(sample)
	return nil
}

// AddAACSample appends an audio sample to the named track.
func (s *Store) AddAACSample(id TrackID, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id].(*AACTrack)
	if !ok {
		return ErrUnknownTrack
	}
	t.push(sample)
	return nil
}

// GetTrack returns the track for id. It only locks Store.mu for the map
// lookup: each Track method the caller then invokes (Segments,
// SegmentSamples, Parts, ...) takes the track's own mutex for the duration
// of its read, so a concurrent push into that track can never race with it.
// What GetTrack does not give you is atomicity across several such calls --
// e.g. a push between SegmentSamples and SegmentNumberFor can shift the
// segment numbering -- callers already tolerate this (a retried request
// picks up the new state).
func (s *Store) GetTrack(id TrackID) (Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, ErrUnknownTrack
	}
	return t, nil
}

// TrackList returns every track currently allocated, in allocation order.
func (s *Store) TrackList() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// HasPTSToUTC reports whether the wall-clock offset has been set.
func (s *Store) HasPTSToUTC() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPtsToUTC
}

// SetPTSToUTC records the wall-clock offset, in 90kHz ticks, once. Per
// §4.4, the first observation wins; later calls are ignored.
func (s *Store) SetPTSToUTC(offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPtsToUTC {
		return
	}
	s.hasPtsToUTC = true
	s.ptsToUTC = offset
}

// PTSToUTC returns the stored offset and whether it has been set.
func (s *Store) PTSToUTC() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ptsToUTC, s.hasPtsToUTC
}
