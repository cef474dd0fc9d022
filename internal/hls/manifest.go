// Package hls renders LL-HLS master and media manifests from a store.Store,
// maps the blocking-reload query parameters onto a track's notification bus,
// and serves the fMP4 init/segment/part bytes the manifests point at.
package hls

import (
	"strconv"
	"strings"
	"time"

	"github.com/dholroyd/lowly/internal/store"
	"github.com/dholroyd/lowly/internal/wallclock"
)

// partTargetSeconds and partHoldBackSeconds are the fixed LL-HLS part-timing
// advertisements from §4.7; every part this module produces is 8 video
// samples (0.32s at the nominal 25fps/3600-tick cadence) or 15 audio frames.
const (
	partTargetSeconds   = "0.320"
	partHoldBackSeconds = "0.960"
)

// RenderMaster renders the master manifest: one EXT-X-STREAM-INF per video
// track, one EXT-X-MEDIA per audio track, per §4.7.
func RenderMaster(tracks []store.Track) []byte {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")
	b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")

	for _, t := range tracks {
		if _, ok := t.(*store.AACTrack); ok {
			b.WriteString("#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"default-audio-group\",NAME=\"audio\",AUTOSELECT=YES,DEFAULT=YES,URI=\"")
			b.WriteString(mediaURI(t.ID()))
			b.WriteString("\"\n")
		}
	}

	for _, t := range tracks {
		vt, ok := t.(*store.AVCTrack)
		if !ok {
			continue
		}
		b.WriteString("#EXT-X-STREAM-INF:")
		var attrs []string
		if mb := vt.MaxBitrate(); mb != nil {
			attrs = append(attrs, "BANDWIDTH="+strconv.FormatUint(uint64(*mb), 10))
		} else {
			attrs = append(attrs, "BANDWIDTH=1000000")
		}
		width, height := vt.Dimensions()
		attrs = append(attrs, "RESOLUTION="+strconv.FormatUint(uint64(width), 10)+"x"+strconv.FormatUint(uint64(height), 10))
		attrs = append(attrs, "CODECS=\""+codecsFor(tracks, vt)+"\"")
		attrs = append(attrs, "AUDIO=\"default-audio-group\"")
		b.WriteString(strings.Join(attrs, ","))
		b.WriteString("\n")
		b.WriteString(mediaURI(vt.ID()))
		b.WriteString("\n")
	}

	return []byte(b.String())
}

func codecsFor(tracks []store.Track, vt *store.AVCTrack) string {
	codecs := []string{vt.RFC6381Codec()}
	for _, t := range tracks {
		if at, ok := t.(*store.AACTrack); ok {
			codecs = append(codecs, "mp4a.40."+strconv.FormatUint(uint64(at.AudioObjectType()), 10))
			break
		}
	}
	return strings.Join(codecs, ",")
}

func mediaURI(id store.TrackID) string {
	return "track/" + strconv.Itoa(int(id)) + "/media.m3u8"
}

// RenderMedia renders the media manifest for t, per §4.7. ptsToUTC/hasOffset
// carry the store's wall-clock mapper state (§4.4), already read out under
// the store's guard by the caller.
func RenderMedia(t store.Track, ptsToUTC int64, hasOffset bool) []byte {
	segments := t.Segments()

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")
	b.WriteString("#EXT-X-TARGETDURATION:2\n")
	b.WriteString("#EXT-X-PART-INF:PART-TARGET=" + partTargetSeconds + "\n")
	b.WriteString("#EXT-X-SERVER-CONTROL:CAN-BLOCK-RELOAD=YES,PART-HOLD-BACK=" + partHoldBackSeconds + "\n")

	first := t.MediaSequenceNumber() - uint64(len(segments))
	if first > 0 {
		b.WriteString("#EXT-X-MEDIA-SEQUENCE:" + strconv.FormatUint(first, 10) + "\n")
	}
	b.WriteString("#EXT-X-MAP:URI=\"init.mp4\"\n")

	if hasOffset && len(segments) > 0 {
		tm := wallclock.TicksToTime(segments[0].Dts + ptsToUTC)
		b.WriteString("#EXT-X-PROGRAM-DATE-TIME:" + tm.Format("2006-01-02T15:04:05.000Z") + "\n")
	}

	for i, seg := range segments {
		if !seg.Continuous {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}

		if t.HasParts(seg.Dts) {
			parts, err := t.Parts(seg.Dts)
			if err == nil {
				for _, p := range parts {
					writePart(&b, t.ID(), seg.Dts, p)
				}
			}
		}

		if seg.Duration != nil {
			dur := float64(*seg.Duration) / 90000.0
			b.WriteString("#EXTINF:" + strconv.FormatFloat(dur, 'f', 3, 64) + ",\n")
			b.WriteString(segmentURI(t.ID(), seg.Dts))
			b.WriteString("\n")
		}

		if i == len(segments)-1 {
			writePreloadHint(&b, t, seg)
		}
	}

	return []byte(b.String())
}

func writePart(b *strings.Builder, id store.TrackID, segDts int64, p store.PartInfo) {
	b.WriteString("#EXT-X-PART:")
	var attrs []string
	if p.Duration != nil {
		dur := float64(*p.Duration) / 90000.0
		attrs = append(attrs, "DURATION="+strconv.FormatFloat(dur, 'f', 3, 64))
	}
	attrs = append(attrs, "URI=\""+partURI(id, segDts, p.PartID)+"\"")
	if p.Independent {
		attrs = append(attrs, "INDEPENDENT=YES")
	}
	b.WriteString(strings.Join(attrs, ","))
	b.WriteString("\n")
}

// writePreloadHint points at one part beyond the last complete part of the
// tail segment, per §4.7's "so that clients can start fetching it before it
// is finalized".
func writePreloadHint(b *strings.Builder, t store.Track, seg store.SegmentInfo) {
	nextPart := 0
	if t.HasParts(seg.Dts) {
		if parts, err := t.Parts(seg.Dts); err == nil {
			nextPart = len(parts)
		}
	}
	b.WriteString("#EXT-X-PRELOAD-HINT:TYPE=PART,URI=\"" + partURI(t.ID(), seg.Dts, nextPart) + "\"\n")
}

func segmentURI(id store.TrackID, dts int64) string {
	return "track/" + strconv.Itoa(int(id)) + "/segment/" + strconv.FormatInt(dts, 10) + "/seg.mp4"
}

func partURI(id store.TrackID, dts int64, partID int) string {
	return "track/" + strconv.Itoa(int(id)) + "/segment/" + strconv.FormatInt(dts, 10) + "/part/" + strconv.Itoa(partID) + ".mp4"
}

// preloadDeadline bounds how long a blocking reload will wait before giving
// up and rendering whatever is current; it guards against a client
// disconnect never being observed by the HTTP server.
const preloadDeadline = 30 * time.Second
