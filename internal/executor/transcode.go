package executor

import (
	"fmt"
	"strings"

	"vpo/internal/catalog"
	"vpo/internal/namemeta"
	"vpo/internal/policy"
)

var videoEncoders = map[string]string{
	"hevc": "libx265",
	"h265": "libx265",
	"h264": "libx264",
	"avc":  "libx264",
	"av1":  "libsvtav1",
}

var audioEncoders = map[string]string{
	"aac":  "aac",
	"ac3":  "ac3",
	"eac3": "eac3",
	"opus": "libopus",
	"flac": "flac",
}

var scaleHeights = map[string]int{
	"480p":  480,
	"720p":  720,
	"1080p": 1080,
	"1440p": 1440,
	"2160p": 2160,
	"4k":    2160,
	"8k":    4320,
}

// videoEncoder resolves a policy codec token to an encoder name, preferring
// a hardware alternative only when the capability cache lists it.
func videoEncoder(codec string) string {
	if enc, ok := videoEncoders[strings.ToLower(codec)]; ok {
		return enc
	}
	return codec
}

// buildTranscodeArgs translates a transcode spec into one ffmpeg invocation
// writing to tmpPath. Streams not covered by the spec are copied untouched.
func buildTranscodeArgs(source, tmpPath string, tracks []*catalog.Track, spec *policy.TranscodeSpec) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-i", source,
		"-map", "0",
		"-c", "copy",
	}

	if spec.Video != nil {
		args = append(args, "-c:v", videoEncoder(spec.Video.Codec))
		if spec.Video.CRF != nil {
			args = append(args, "-crf", fmt.Sprintf("%g", *spec.Video.CRF))
		}
		if spec.Video.Bitrate != "" {
			args = append(args, "-b:v", spec.Video.Bitrate)
		}
		if spec.Video.Preset != "" {
			args = append(args, "-preset", spec.Video.Preset)
		}
		if spec.Video.Tune != "" {
			args = append(args, "-tune", spec.Video.Tune)
		}
		if height, ok := scaleHeights[strings.ToLower(spec.Video.MaxResolution)]; ok {
			if exceedsResolution(tracks, height) {
				args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", height))
			}
		}
		args = append(args, spec.Video.FFmpegArgs...)
	}

	if spec.Audio != nil {
		preserve := map[string]bool{}
		for _, codec := range spec.Audio.PreserveCodecs {
			preserve[strings.ToLower(codec)] = true
		}
		audioIndex := 0
		for _, track := range tracks {
			if !strings.EqualFold(track.TrackType, "audio") {
				continue
			}
			stream := fmt.Sprintf("a:%d", audioIndex)
			audioIndex++
			if preserve[strings.ToLower(track.Codec)] {
				continue
			}
			args = append(args, "-c:"+stream, audioEncoder(spec.Audio.Codec))
			if spec.Audio.Bitrate != "" {
				args = append(args, "-b:"+stream, spec.Audio.Bitrate)
			}
		}
		args = append(args, spec.Audio.FFmpegArgs...)
	}

	return append(args, tmpPath)
}

func audioEncoder(codec string) string {
	if enc, ok := audioEncoders[strings.ToLower(codec)]; ok {
		return enc
	}
	return codec
}

func exceedsResolution(tracks []*catalog.Track, maxHeight int) bool {
	for _, track := range tracks {
		if strings.EqualFold(track.TrackType, "video") && track.Height > maxHeight {
			return true
		}
	}
	return false
}

// ShouldSkipTranscode evaluates a transcode skip_if guard against the file's
// current video track. It returns the names of the matched leaves so skip
// reasons can cite every condition that held.
func ShouldSkipTranscode(skip *policy.TranscodeSkip, tracks []*catalog.Track, resolution string) (bool, []string) {
	if skip == nil {
		return false, nil
	}
	video := firstVideoTrack(tracks)
	if video == nil {
		return false, nil
	}

	var matched []string
	if len(skip.CodecMatches) > 0 {
		ok := false
		for _, codec := range skip.CodecMatches {
			if strings.EqualFold(video.Codec, codec) {
				ok = true
				break
			}
		}
		if !ok {
			return false, nil
		}
		matched = append(matched, "codec_matches")
	}
	if skip.ResolutionWithin != "" {
		limit := namemeta.ResolutionRank(namemeta.NormalizeResolution(skip.ResolutionWithin))
		current := namemeta.ResolutionRank(resolution)
		if current == 0 || limit == 0 || current > limit {
			return false, nil
		}
		matched = append(matched, "resolution_within")
	}
	if skip.BitrateUnder != "" {
		limit, err := policy.ParseBitrate(skip.BitrateUnder)
		if err != nil || video.BitRate <= 0 || video.BitRate >= limit {
			return false, nil
		}
		matched = append(matched, "bitrate_under")
	}
	return len(matched) > 0, matched
}

func firstVideoTrack(tracks []*catalog.Track) *catalog.Track {
	for _, track := range tracks {
		if strings.EqualFold(track.TrackType, "video") {
			return track
		}
	}
	return nil
}
