package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dholroyd/lowly/internal/fmp4"
	"github.com/dholroyd/lowly/internal/log"
	"github.com/dholroyd/lowly/internal/store"
)

// Server serves the LL-HLS HTTP surface (§6) and the live-update websocket
// (§13) over a store.Store, in the teacher's manual-path-parsing idiom.
// Start serves once and returns the listener's error; it does not retry.
type Server struct {
	store  *store.Store
	logger *log.Logger
}

// NewServer returns a Server reading from s and logging through logger.
func NewServer(s *store.Store, logger *log.Logger) *Server {
	return &Server{store: s, logger: logger}
}

// Start opens a listener on addr and serves until ctx is cancelled.
func (srv *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handle)
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	err := <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (srv *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	switch r.Method {
	case http.MethodGet:
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
		w.WriteHeader(http.StatusOK)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	p := strings.TrimPrefix(r.URL.Path, "/")

	if p == "master.m3u8" {
		srv.serveMaster(w, r)
		return
	}

	if !strings.HasPrefix(p, "track/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.TrimPrefix(p, "track/"), "/")

	idNum, err := strconv.Atoi(parts[0])
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := store.TrackID(idNum)

	switch {
	case len(parts) == 2 && parts[1] == "media.m3u8":
		srv.serveMedia(w, r, id)
	case len(parts) == 2 && parts[1] == "init.mp4":
		srv.serveInit(w, r, id)
	case len(parts) == 2 && parts[1] == "watch":
		srv.serveWatch(w, r, id)
	case len(parts) == 4 && parts[1] == "segment" && parts[3] == "seg.mp4":
		srv.serveSegment(w, r, id, parts[2])
	case len(parts) == 5 && parts[1] == "segment" && parts[3] == "part" && strings.HasSuffix(parts[4], ".mp4"):
		srv.servePart(w, r, id, parts[2], strings.TrimSuffix(parts[4], ".mp4"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (srv *Server) serveMaster(w http.ResponseWriter, _ *http.Request) {
	tracks := srv.store.TrackList()
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, _ = w.Write(RenderMaster(tracks))
}

func (srv *Server) serveInit(w http.ResponseWriter, _ *http.Request, id store.TrackID) {
	track, err := srv.store.GetTrack(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body []byte
	switch t := track.(type) {
	case *store.AVCTrack:
		body, err = fmp4.BuildVideoInit(t)
	case *store.AACTrack:
		body, err = fmp4.BuildAudioInit(t)
	default:
		err = store.ErrBuilderFailure
	}
	if err != nil {
		srv.logger.Error().Src("hls").Msgf("building init segment for track %d: %v", id, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	_, _ = w.Write(body)
}

func (srv *Server) serveSegment(w http.ResponseWriter, _ *http.Request, id store.TrackID, dtsParam string) {
	dts, err := strconv.ParseInt(dtsParam, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	track, err := srv.store.GetTrack(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	samples, err := track.SegmentSamples(dts)
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}
	seq, err := track.SegmentNumberFor(dts)
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}

	body, err := buildSegment(track, samples, seq)
	if err != nil {
		srv.logger.Error().Src("hls").Msgf("building segment for track %d at dts %d: %v", id, dts, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	_, _ = w.Write(body)
}

func (srv *Server) servePart(w http.ResponseWriter, _ *http.Request, id store.TrackID, dtsParam, partIDParam string) {
	dts, err := strconv.ParseInt(dtsParam, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	partID, err := strconv.Atoi(partIDParam)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	track, err := srv.store.GetTrack(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	parts, err := track.Parts(dts)
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}
	if partID < 0 || partID >= len(parts) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	samples, err := track.SegmentSamples(dts)
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}
	group := partSamples(track, samples, partID)
	seq, err := track.PartNumberFor(dts, partID)
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}

	body, err := buildSegment(track, group, seq)
	if err != nil {
		srv.logger.Error().Src("hls").Msgf("building part for track %d at dts %d/%d: %v", id, dts, partID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	_, _ = w.Write(body)
}

func partSamples(track store.Track, segSamples []store.Sample, partID int) []store.Sample {
	n := store.AudioFramesPerPart
	if _, ok := track.(*store.AVCTrack); ok {
		n = store.VideoSamplesPerPart
	}
	start := partID * n
	end := start + n
	if end > len(segSamples) {
		end = len(segSamples)
	}
	if start > len(segSamples) {
		start = len(segSamples)
	}
	return segSamples[start:end]
}

func buildSegment(track store.Track, samples []store.Sample, seq uint64) ([]byte, error) {
	switch track.(type) {
	case *store.AVCTrack:
		return fmp4.BuildVideoSegment(samples, seq)
	case *store.AACTrack:
		return fmp4.BuildAudioSegment(samples, seq)
	default:
		return nil, store.ErrBuilderFailure
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrBadSampleTime), errors.Is(err, store.ErrNoSegments), errors.Is(err, store.ErrNoPartsForSegment):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnknownTrack):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (srv *Server) serveMedia(w http.ResponseWriter, r *http.Request, id store.TrackID) {
	track, err := srv.store.GetTrack(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	msn, hasMSN := parseUint64Param(q, "_HLS_msn")
	part, hasPart := parseUint16Param(q, "_HLS_part")
	push, _ := parseUint16Param(q, "_HLS_push")

	current := track.MediaSequenceNumber()

	if hasMSN {
		if msn > current+1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprintf(w, "requested msn %d is too far ahead of the live edge (%d)\n", msn, current)
			return
		}

		needsWait := msn == current+1
		if msn == current && hasPart {
			// Only wait if the named part hasn't been produced for the
			// current (still-open) segment yet.
			if segs := track.Segments(); len(segs) > 0 {
				if produced, err := track.Parts(segs[len(segs)-1].Dts); err == nil {
					needsWait = uint16(len(produced)) <= part
				}
			}
		}

		if needsWait {
			srv.waitForSequence(r.Context(), track, msn, part)
		}
	}

	ptsToUTC, hasOffset := srv.store.PTSToUTC()

	if hasMSN && hasPart && push > 0 {
		dts := partPreloadDts(track)
		w.Header().Set("Link", fmt.Sprintf("</track/%d/segment/%d/part/%d.mp4>; rel=preload; as=video; type=video/mp4", id, dts, part))
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, _ = w.Write(RenderMedia(track, ptsToUTC, hasOffset))
}

func partPreloadDts(track store.Track) int64 {
	segs := track.Segments()
	if len(segs) == 0 {
		return 0
	}
	return segs[len(segs)-1].Dts
}

// waitForSequence subscribes to track's bus and returns once a value at or
// past (msn, part) is observed, the request context is cancelled, or
// preloadDeadline elapses, per §4.7's blocking-reload rule.
func (srv *Server) waitForSequence(ctx context.Context, track store.Track, msn uint64, part uint16) {
	ch, cancel := track.Watch().Subscribe()
	defer cancel()

	deadline := time.NewTimer(preloadDeadline)
	defer deadline.Stop()

	for {
		select {
		case seq := <-ch:
			if seq.Seg > msn || (seq.Seg == msn && seq.Part >= part) {
				return
			}
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		}
	}
}

func parseUint64Param(q map[string][]string, name string) (uint64, bool) {
	v := q[name]
	if len(v) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(v[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseUint16Param(q map[string][]string, name string) (uint16, bool) {
	v := q[name]
	if len(v) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(v[0], 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}
