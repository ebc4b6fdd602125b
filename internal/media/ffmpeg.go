package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/video2slides/internal/config"
	"github.com/MimeLyc/video2slides/pkg/file"
	"github.com/MimeLyc/video2slides/pkg/log"
)

type ffmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
}

func NewFfmpeg(ffmpegCmd, ffprobeCmd string) ffmpeg {
	if strings.TrimSpace(ffmpegCmd) == "" {
		ffmpegCmd = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeCmd) == "" {
		ffprobeCmd = "ffprobe"
	}
	return ffmpeg{
		ffmpegCmd:  ffmpegCmd,
		ffprobeCmd: ffprobeCmd,
	}
}

func NewOpener(tools config.ToolsConfig) Opener {
	return NewFfmpeg(tools.FFmpeg, tools.FFprobe)
}

// Open probes path and returns a frame reader for it. Probe failures on a
// non-empty file are reported as NeedsConversion since a re-encode usually
// fixes odd containers and codecs.
func (ff ffmpeg) Open(ctx context.Context, path string) OpenResult {
	if !file.NonEmpty(path) {
		return OpenResult{State: Failed, Err: fmt.Errorf("video file is missing or empty: %s", path)}
	}

	info, err := ff.Probe(ctx, path)
	if err != nil {
		log.Warn("Could not open video file %s: %v", path, err)
		return OpenResult{State: NeedsConversion, Err: err}
	}
	if info.Width <= 0 || info.Height <= 0 {
		return OpenResult{State: NeedsConversion, Err: fmt.Errorf("no decodable video stream in %s", path)}
	}

	return OpenResult{
		State: Opened,
		Video: &videoFile{ff: ff, path: path, info: info},
	}
}

// Probe reads stream metadata of the first video stream with ffprobe.
func (ff ffmpeg) Probe(ctx context.Context, path string) (Info, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return Info{}, err
	}
	output, err := exec.CommandContext(ctx, cmdPath, ff.probeArgs(path)...).Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(output)
}

// Convert re-encodes the video with libx264 next to the original file.
func (ff ffmpeg) Convert(ctx context.Context, path string) (string, error) {
	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return "", err
	}
	output := file.WithSuffix(path, "_converted", ".mp4")

	log.Info("Converting %s to %s", path, output)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, ff.convertArgs(path, output)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("video conversion failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if !file.NonEmpty(output) {
		return "", fmt.Errorf("video conversion produced no output")
	}
	return output, nil
}

func (ffmpeg) probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	}
}

func (ffmpeg) convertArgs(input, output string) []string {
	return []string{
		"-y",
		"-v", "error",
		"-i", input,
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "medium",
		output,
	}
}

// frameArgs seeks before the input so ffmpeg only decodes from the nearest
// keyframe, then emits a single PNG on stdout.
func (ffmpeg) frameArgs(path string, offset time.Duration) []string {
	return []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(raw []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, stream := range out.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info := Info{
			Codec:  stream.CodecName,
			Width:  stream.Width,
			Height: stream.Height,
			FPS:    parseRate(stream.AvgFrameRate),
		}
		if info.FPS <= 0 {
			info.FPS = parseRate(stream.RFrameRate)
		}

		seconds := parseSeconds(stream.Duration)
		if seconds <= 0 {
			seconds = parseSeconds(out.Format.Duration)
		}
		info.Duration = time.Duration(seconds * float64(time.Second))

		info.FrameCount, _ = strconv.Atoi(strings.TrimSpace(stream.NbFrames))
		if info.FrameCount <= 0 && info.FPS > 0 && seconds > 0 {
			info.FrameCount = int(math.Round(seconds * info.FPS))
		}
		return info, nil
	}
	return Info{}, fmt.Errorf("no video stream found")
}

// parseRate parses ffprobe rationals such as "30000/1001" or "25/1".
func parseRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, found := strings.Cut(value, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0
	}
	return f
}

type videoFile struct {
	ff   ffmpeg
	path string
	info Info
}

func (v *videoFile) Info() Info {
	return v.info
}

func (v *videoFile) ReadFrame(ctx context.Context, index int) (image.Image, error) {
	if index < 0 || (v.info.FrameCount > 0 && index >= v.info.FrameCount) {
		return nil, fmt.Errorf("frame %d out of range", index)
	}
	fps := v.info.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}

	cmdPath, err := exec.LookPath(v.ff.ffmpegCmd)
	if err != nil {
		return nil, err
	}
	offset := time.Duration(float64(index) / fps * float64(time.Second))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, v.ff.frameArgs(v.path, offset)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode frame %d: %w: %s", index, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("decode frame %d: no data", index)
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", index, err)
	}
	return img, nil
}

func (v *videoFile) Close() error {
	return nil
}
