package streaming

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/pion/rtp"
)

// h264Passthrough forwards H264 RTP packets without reassembly. Viewers of
// a shared pipeline join at arbitrary points, so SPS/PPS taken from the
// fmtp line are sent ahead of every IDR that does not carry them in-band.
type h264Passthrough struct {
	handler     func(*rtp.Packet)
	sps, pps    []byte
	payloadType uint8
	sentPS      bool
}

func newH264Passthrough(codec *core.Codec, handler func(*rtp.Packet)) *h264Passthrough {
	sps, pps := parseSpsPps(codec.FmtpLine)
	return &h264Passthrough{
		handler:     handler,
		sps:         sps,
		pps:         pps,
		payloadType: codec.PayloadType,
	}
}

func (h *h264Passthrough) forward(packet *rtp.Packet) {
	if len(packet.Payload) == 0 {
		return
	}

	nalType := packet.Payload[0] & 0x1F

	switch nalType {
	case 7, 8: // SPS, PPS
		h.sentPS = true
	case 24: // STAP-A
		if h.stapAContainsPS(packet.Payload) {
			h.sentPS = true
		}
	case 5: // IDR
		if !h.sentPS {
			h.injectParameterSets(packet)
		}
		h.sentPS = false
	case 28: // FU-A
		if len(packet.Payload) >= 2 {
			fuHeader := packet.Payload[1]
			isStart := fuHeader&0x80 != 0
			fragNalType := fuHeader & 0x1F
			if isStart && fragNalType == 5 {
				if !h.sentPS {
					h.injectParameterSets(packet)
				}
				h.sentPS = false
			}
		}
	}

	h.handler(packet)
}

// stapAContainsPS checks if a STAP-A packet contains SPS or PPS.
func (h *h264Passthrough) stapAContainsPS(payload []byte) bool {
	offset := 1
	for offset+2 <= len(payload) {
		nalSize := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if offset+nalSize > len(payload) || nalSize == 0 {
			break
		}
		nalType := payload[offset] & 0x1F
		if nalType == 7 || nalType == 8 {
			return true
		}
		offset += nalSize
	}
	return false
}

func (h *h264Passthrough) injectParameterSets(template *rtp.Packet) {
	if len(h.sps) > 0 {
		h.sendNAL(template, h.sps)
	}
	if len(h.pps) > 0 {
		h.sendNAL(template, h.pps)
	}
	h.sentPS = true
}

func (h *h264Passthrough) sendNAL(template *rtp.Packet, nal []byte) {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			PayloadType: h.payloadType,
			Timestamp:   template.Timestamp,
			SSRC:        template.SSRC,
		},
		Payload: nal,
	}
	h.handler(pkt)
}

// parseSpsPps extracts SPS and PPS from the codec's fmtp line.
func parseSpsPps(fmtpLine string) (sps, pps []byte) {
	const prefix = "sprop-parameter-sets="

	idx := strings.Index(fmtpLine, prefix)
	if idx < 0 {
		return nil, nil
	}

	value := fmtpLine[idx+len(prefix):]
	if semi := strings.Index(value, ";"); semi >= 0 {
		value = value[:semi]
	}

	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return nil, nil
	}

	sps, _ = base64.StdEncoding.DecodeString(parts[0])
	pps, _ = base64.StdEncoding.DecodeString(parts[1])
	return sps, pps
}

// h264ProfileFromFmtp returns the profile_idc announced in fmtp, from
// profile-level-id or else from the SPS in sprop-parameter-sets. Zero means
// unknown.
func h264ProfileFromFmtp(fmtpLine string) byte {
	for _, part := range strings.Split(fmtpLine, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key != "profile-level-id" {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) < 2 {
			return 0
		}
		b, err := hex.DecodeString(value[:2])
		if err != nil {
			return 0
		}
		return b[0]
	}

	if sps, _ := parseSpsPps(fmtpLine); len(sps) > 1 {
		return sps[1]
	}
	return 0
}
