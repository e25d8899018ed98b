// Package ingest implements the RTSP Ingester (C3): for one configured
// stream, it establishes an RTSP session, selects the video substream,
// repackages each access unit through internal/muxer, and publishes the
// resulting DataFrames to the stream's StreamDefinition.
package ingest

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtph264"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtph265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/pion/rtp"

	"rtsp2ws/internal/loglevel"
	"rtsp2ws/internal/metrics"
	"rtsp2ws/internal/muxer"
	"rtsp2ws/pkg/models"
)

// Transport selects the RTSP delivery transport requested at SETUP. The
// zero value leaves the choice to gortsplib's own default.
type Transport int

const (
	TransportDefault Transport = iota
	TransportUDP
	TransportTCP
)

// ParseTransport maps a CLI transport name to a Transport; unrecognised
// values fail at setup time.
func ParseTransport(name string) (Transport, error) {
	switch strings.ToLower(name) {
	case "":
		return TransportDefault, nil
	case "udp":
		return TransportUDP, nil
	case "tcp":
		return TransportTCP, nil
	default:
		return TransportDefault, fmt.Errorf("ingest: unrecognised transport %q", name)
	}
}

func (t Transport) gortsplibTransport() *gortsplib.Transport {
	switch t {
	case TransportUDP:
		v := gortsplib.TransportUDP
		return &v
	case TransportTCP:
		v := gortsplib.TransportTCP
		return &v
	default:
		return nil
	}
}

// Ingester drives one stream's RTSP session through its lifecycle: Init,
// Describing, Selecting, SettingUp, Playing, Terminating, Done.
type Ingester struct {
	stream    *models.StreamDefinition
	transport Transport
	metrics   *metrics.Metrics

	// firstPTS anchors DataFrame.Metadata.TS: ts is milliseconds since the
	// first frame's upstream timestamp, not the raw RTP-derived PTS. Touched
	// only from the single-goroutine Playing loop.
	firstPTS    time.Duration
	firstPTSSet bool
}

// New constructs an Ingester for a stream; the Ingester does not start
// until Run is called.
func New(stream *models.StreamDefinition, transport Transport, m *metrics.Metrics) *Ingester {
	return &Ingester{stream: stream, transport: transport, metrics: m}
}

// Run executes the Ingester's state machine until ctx is cancelled or a
// fatal error occurs. It always returns after attempting teardown; the
// returned error is nil only on a clean, context-driven shutdown.
func (ing *Ingester) Run(ctx context.Context) error {
	path := ing.stream.Path

	u, err := base.ParseURL(ing.stream.URL)
	if err != nil {
		ing.fatal("Describing", fmt.Errorf("invalid RTSP URL: %w", err))
		return err
	}

	client := &gortsplib.Client{
		Transport: ing.transport.gortsplibTransport(),
		OnPacketLost: func(err error) {
			loglevel.Logf(loglevel.Warn, "ingest %s: packet lost: %v", path, err)
		},
		OnTransportSwitch: func(err error) {
			loglevel.Logf(loglevel.Warn, "ingest %s: transport switch: %v", path, err)
		},
		OnDecodeError: func(err error) {
			loglevel.Logf(loglevel.Debug, "ingest %s: decode error: %v", path, err)
		},
	}

	if err := client.Start(u.Scheme, u.Host); err != nil {
		ing.fatal("Describing", fmt.Errorf("connect failed: %w", err))
		return err
	}
	defer func() {
		loglevel.Logf(loglevel.Info, "ingest %s: tearing down", path)
		if err := client.Close(); err != nil {
			loglevel.Logf(loglevel.Warn, "ingest %s: teardown error (original error, if any, takes precedence): %v", path, err)
		}
	}()

	session, _, err := client.Describe(u)
	if err != nil {
		ing.fatal("Describing", fmt.Errorf("DESCRIBE failed: %w", err))
		return err
	}

	pub, err := selectVideoSubstream(session)
	if err != nil {
		ing.fatal("Selecting", err)
		return err
	}

	if _, err := client.Setup(session.BaseURL, pub.media, 0, 0); err != nil {
		ing.fatal("SettingUp", fmt.Errorf("SETUP failed: %w", err))
		return err
	}

	units := make(chan accessUnit, 8)
	if err := pub.attach(client, units); err != nil {
		ing.fatal("SettingUp", err)
		return err
	}

	if _, err := client.Play(nil); err != nil {
		ing.fatal("SettingUp", fmt.Errorf("PLAY failed: %w", err))
		return err
	}

	ing.metrics.RecordIngesterStart()
	defer ing.metrics.RecordIngesterStop()
	loglevel.Logf(loglevel.Info, "ingest %s: playing", path)

	return ing.playLoop(ctx, client, pub, units)
}

// playLoop is the Playing state: it publishes repackaged frames until the
// demuxer errors, the upstream ends, or ctx is cancelled.
func (ing *Ingester) playLoop(ctx context.Context, client *gortsplib.Client, pub *publication, units chan accessUnit) error {
	path := ing.stream.Path

	for {
		select {
		case <-ctx.Done():
			loglevel.Logf(loglevel.Info, "ingest %s: shutdown signal", path)
			return nil

		case <-client.Wait():
			return fmt.Errorf("ingest %s: RTSP session ended", path)

		case au, ok := <-units:
			if !ok {
				return fmt.Errorf("ingest %s: demuxer channel closed", path)
			}
			ing.publish(pub, au)
		}
	}
}

// publish repackages one access unit and pushes the resulting DataFrame; a
// repackaging failure drops the access unit and is logged, never fatal.
func (ing *Ingester) publish(pub *publication, au accessUnit) {
	path := ing.stream.Path

	prefix := pub.configPrefix()
	if au.isKeyframe && prefix == nil {
		ing.metrics.RecordFrameDropped(path, "missing-configuration")
		loglevel.Logf(loglevel.Warn, "ingest %s: dropping keyframe, no configuration prefix available", path)
		return
	}

	if !ing.firstPTSSet {
		ing.firstPTS = au.pts
		ing.firstPTSSet = true
	}
	ts := (au.pts - ing.firstPTS).Milliseconds()

	frame, err := muxer.BuildDataFrame(ts, pub.codec, prefix, au.isKeyframe, au.avcc)
	if err != nil {
		ing.metrics.RecordFrameDropped(path, "repackage-error")
		loglevel.Logf(loglevel.Warn, "ingest %s: dropping access unit: %v", path, err)
		return
	}

	ing.stream.Publish(frame)
	ing.metrics.RecordFramePublished(path, au.isKeyframe)
}

func (ing *Ingester) fatal(state string, err error) {
	ing.metrics.RecordIngesterError(ing.stream.Path, state)
	loglevel.Logf(loglevel.Error, "ingest %s: fatal in %s: %v", ing.stream.Path, state, err)
}

// accessUnit is one demuxed access unit handed from the RTP callback to the
// Playing loop, already AVCC-framed and timestamped.
type accessUnit struct {
	avcc       []byte
	pts        time.Duration
	isKeyframe bool
}

// selectVideoSubstream finds the first media whose format is H.264 or
// H.265. Non-video / unsupported-codec media are ignored, never torn down
// individually.
func selectVideoSubstream(session *description.Session) (*publication, error) {
	for _, media := range session.Medias {
		for _, forma := range media.Formats {
			switch f := forma.(type) {
			case *format.H264:
				return newH264Publication(media, f)
			case *format.H265:
				return newH265Publication(media, f)
			}
		}
	}

	return nil, fmt.Errorf("ingest: no supported video substream (h264/h265) in RTSP description")
}

// publication bridges one selected video media to the repackager: it owns
// the RTP→access-unit decoder, the cached Annex-B configuration prefix
// (refreshed whenever new parameter sets arrive in-band), and the RFC 6381
// codec identifier.
type publication struct {
	media *description.Media
	codec string

	attach func(client *gortsplib.Client, out chan<- accessUnit) error

	prefixMu sync.RWMutex
	prefix   []byte
}

func (p *publication) configPrefix() []byte {
	p.prefixMu.RLock()
	defer p.prefixMu.RUnlock()
	return p.prefix
}

func (p *publication) setConfigPrefix(prefix []byte) {
	p.prefixMu.Lock()
	p.prefix = prefix
	p.prefixMu.Unlock()
}

func newH264Publication(media *description.Media, f *format.H264) (*publication, error) {
	pub := &publication{media: media, codec: rfc6381H264(f.SPS)}

	if f.SPS != nil && f.PPS != nil {
		if record, err := muxer.MarshalH264ExtraData(f.SPS, f.PPS); err == nil {
			if prefix, err := muxer.ParseH264ExtraData(record); err == nil {
				pub.setConfigPrefix(prefix)
			}
		}
	}

	pub.attach = func(client *gortsplib.Client, out chan<- accessUnit) error {
		dec, err := f.CreateDecoder()
		if err != nil {
			return fmt.Errorf("ingest: creating H.264 RTP decoder: %w", err)
		}

		client.OnPacketRTP(media, f, func(pkt *rtp.Packet) {
			au, err := dec.Decode(pkt)
			if err != nil {
				if err != rtph264.ErrNonStartingPacketAndNoPrevious && err != rtph264.ErrMorePacketsNeeded {
					loglevel.Logf(loglevel.Debug, "ingest: H.264 decode error: %v", err)
				}
				return
			}

			if sps, pps, ok := findH264ParameterSets(au); ok {
				if record, err := muxer.MarshalH264ExtraData(sps, pps); err == nil {
					if prefix, err := muxer.ParseH264ExtraData(record); err == nil {
						pub.setConfigPrefix(prefix)
					}
				}
			}

			pts, _ := client.PacketPTS(media, pkt)
			forwardAccessUnit(out, au, pts, muxer.IsH264IDRNAL)
		})
		return nil
	}

	return pub, nil
}

// findH264ParameterSets looks for an SPS and PPS NAL within one access unit,
// signalling an in-band parameter set refresh.
func findH264ParameterSets(nals [][]byte) (sps, pps []byte, ok bool) {
	for _, nal := range nals {
		if len(nal) == 0 {
			continue
		}
		switch h264.NALUType(nal[0] & 0x1F) {
		case h264.NALUTypeSPS:
			sps = nal
		case h264.NALUTypePPS:
			pps = nal
		}
	}
	return sps, pps, sps != nil && pps != nil
}

func newH265Publication(media *description.Media, f *format.H265) (*publication, error) {
	pub := &publication{media: media, codec: rfc6381H265(f.SPS)}

	if f.VPS != nil && f.SPS != nil && f.PPS != nil {
		if record, err := muxer.MarshalH265ExtraData(f.VPS, f.SPS, f.PPS); err == nil {
			if prefix, err := muxer.ParseH265ExtraData(record); err == nil {
				pub.setConfigPrefix(prefix)
			}
		}
	}

	pub.attach = func(client *gortsplib.Client, out chan<- accessUnit) error {
		dec, err := f.CreateDecoder()
		if err != nil {
			return fmt.Errorf("ingest: creating H.265 RTP decoder: %w", err)
		}

		client.OnPacketRTP(media, f, func(pkt *rtp.Packet) {
			au, err := dec.Decode(pkt)
			if err != nil {
				if err != rtph265.ErrNonStartingPacketAndNoPrevious && err != rtph265.ErrMorePacketsNeeded {
					loglevel.Logf(loglevel.Debug, "ingest: H.265 decode error: %v", err)
				}
				return
			}

			if vps, sps, pps, ok := findH265ParameterSets(au); ok {
				if record, err := muxer.MarshalH265ExtraData(vps, sps, pps); err == nil {
					if prefix, err := muxer.ParseH265ExtraData(record); err == nil {
						pub.setConfigPrefix(prefix)
					}
				}
			}

			pts, _ := client.PacketPTS(media, pkt)
			forwardAccessUnit(out, au, pts, muxer.IsH265KeyframeNAL)
		})
		return nil
	}

	return pub, nil
}

// findH265ParameterSets looks for a VPS, SPS and PPS NAL within one access
// unit, signalling an in-band parameter set refresh.
func findH265ParameterSets(nals [][]byte) (vps, sps, pps []byte, ok bool) {
	for _, nal := range nals {
		if len(nal) == 0 {
			continue
		}
		switch h265.NALUType((nal[0] >> 1) & 0b111111) {
		case h265.NALUType_VPS_NUT:
			vps = nal
		case h265.NALUType_SPS_NUT:
			sps = nal
		case h265.NALUType_PPS_NUT:
			pps = nal
		}
	}
	return vps, sps, pps, vps != nil && sps != nil && pps != nil
}

// forwardAccessUnit converts one decoded access unit (a slice of raw NAL
// units, gortsplib's native output) into AVCC framing and pushes it on out,
// non-blocking: a full channel drops the access unit rather than stalling
// the RTP callback.
func forwardAccessUnit(out chan<- accessUnit, nals [][]byte, pts time.Duration, isKeyframeNAL func([]byte) bool) {
	avcc := toAVCC(nals)
	keyframe := false
	for _, nal := range nals {
		if isKeyframeNAL(nal) {
			keyframe = true
			break
		}
	}

	select {
	case out <- accessUnit{avcc: avcc, pts: pts, isKeyframe: keyframe}:
	default:
	}
}

// toAVCC frames a slice of raw NAL units (gortsplib decoder output) as
// 4-byte-length-prefixed AVCC, the format internal/muxer's converter
// expects as input.
func toAVCC(nals [][]byte) []byte {
	var size int
	for _, n := range nals {
		size += 4 + len(n)
	}
	buf := make([]byte, 0, size)
	for _, n := range nals {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, n...)
	}
	return buf
}

// rfc6381H264 derives an RFC 6381 "avc1.PPCCLL" identifier from the SPS's
// profile/constraint/level bytes.
func rfc6381H264(sps []byte) string {
	if len(sps) < 4 {
		return "avc1"
	}
	return fmt.Sprintf("avc1.%02X%02X%02X", sps[1], sps[2], sps[3])
}

// rfc6381H265 derives a minimal RFC 6381 "hvc1.*" identifier. Full profile
// space/tier/level encoding is out of scope; this covers the common case of
// a general profile indication.
func rfc6381H265(sps []byte) string {
	if len(sps) < 13 {
		return "hvc1"
	}
	generalProfileIdc := sps[3] & 0x1F
	return fmt.Sprintf("hvc1.%d", generalProfileIdc)
}
