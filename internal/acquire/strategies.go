package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/video2slides/pkg/file"
	"github.com/MimeLyc/video2slides/pkg/log"
)

const videoBase = "video"

var mediaExts = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".webm": true,
	".mkv": true, ".avi": true, ".flv": true, ".ts": true,
}

func remoteURL(ref string) (*url.URL, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

// Local accepts a path (or file:// URL) to a file under Root. An empty Root
// refuses every path.
type Local struct {
	Root string
}

func NewLocal(root string) Local {
	return Local{Root: root}
}

func (Local) Name() string { return "local" }

func (l Local) Fetch(_ context.Context, ref, dir string) (string, error) {
	if _, ok := remoteURL(ref); ok {
		return "", ErrNotApplicable
	}
	src, err := l.resolve(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotApplicable
		}
		return "", err
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", src)
	}

	dst := filepath.Join(dir, videoBase+strings.ToLower(filepath.Ext(src)))
	if err := os.Link(src, dst); err == nil {
		return dst, nil
	}
	return dst, copyFile(src, dst)
}

// resolve returns the real path of ref when it lies under Root. Symlinks are
// followed before the check.
func (l Local) resolve(ref string) (string, error) {
	if strings.TrimSpace(l.Root) == "" {
		return "", ErrLocalSource
	}
	root, err := realPath(l.Root)
	if err != nil {
		return "", fmt.Errorf("local source root: %w", err)
	}
	src, err := realPath(strings.TrimPrefix(ref, "file://"))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrLocalSource, ref, l.Root)
	}
	return src, nil
}

func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// YtDlp downloads hosted videos with the yt-dlp binary.
type YtDlp struct {
	bin     string
	timeout time.Duration
}

func NewYtDlp(bin string) *YtDlp {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &YtDlp{bin: bin, timeout: 30 * time.Minute}
}

func (y *YtDlp) Name() string { return "yt-dlp" }

func (y *YtDlp) Fetch(ctx context.Context, ref, dir string) (string, error) {
	if _, ok := remoteURL(ref); !ok {
		return "", ErrNotApplicable
	}
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	// mtime granularity can be a full second on some filesystems
	start := time.Now().Add(-time.Second)
	cmd := exec.CommandContext(ctx, y.bin, ytDlpArgs(ref, dir)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	found, err := file.FindRecentAfter(dir, start)
	if err != nil {
		return "", fmt.Errorf("locate yt-dlp output: %w", err)
	}
	for _, p := range found {
		name := filepath.Base(p)
		if strings.HasPrefix(name, videoBase+".") && !strings.HasSuffix(name, ".part") {
			return p, nil
		}
	}
	return "", fmt.Errorf("yt-dlp produced no video in %s", dir)
}

func ytDlpArgs(ref, dir string) []string {
	return []string{
		"-f", "mp4/best",
		"--no-playlist",
		"--no-warnings",
		"-o", filepath.Join(dir, videoBase+".%(ext)s"),
		ref,
	}
}

// HTTP downloads direct media URLs.
type HTTP struct {
	client *http.Client
}

func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &HTTP{client: client}
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Fetch(ctx context.Context, ref, dir string) (string, error) {
	u, ok := remoteURL(ref)
	if !ok {
		return "", ErrNotApplicable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/") {
		return "", fmt.Errorf("unexpected content type %q", ct)
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if !mediaExts[ext] {
		ext = ".mp4"
	}
	dst := filepath.Join(dir, videoBase+ext)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write video: %w", err)
	}
	log.Debug("Downloaded %d bytes from %s", n, u.Host)
	return dst, nil
}
