package transcoder

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FFmpegEngine runs the ffmpeg binary inside a private scratch directory,
// which plays the part of the engine's virtual filesystem.
type FFmpegEngine struct {
	binary string
	dir    string
	logger *zap.SugaredLogger
}

func NewFFmpegEngine(binary string, logger *zap.SugaredLogger) *FFmpegEngine {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegEngine{binary: binary, logger: logger}
}

func (e *FFmpegEngine) Load(ctx context.Context) error {
	path, err := exec.LookPath(e.binary)
	if err != nil {
		return errors.WithStack(err)
	}
	e.binary = path
	if err := e.run(ctx, "", "-version"); err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "stickerbot-ffmpeg-")
	if err != nil {
		return errors.WithStack(err)
	}
	e.dir = dir
	e.logger.Infow("ffmpeg loaded", "binary", path, "scratch", dir)
	return nil
}

func (e *FFmpegEngine) path(name string) (string, error) {
	if e.dir == "" {
		return "", errors.New("ffmpeg engine is not loaded")
	}
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", errors.Errorf("invalid virtual filename %q", name)
	}
	return filepath.Join(e.dir, name), nil
}

func (e *FFmpegEngine) WriteFile(name string, data []byte) error {
	path, err := e.path(name)
	if err != nil {
		return err
	}
	return errors.WithStack(os.WriteFile(path, data, 0600))
}

func (e *FFmpegEngine) Exec(ctx context.Context, args ...string) error {
	if e.dir == "" {
		return errors.New("ffmpeg engine is not loaded")
	}
	return e.run(ctx, e.dir, append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)
}

func (e *FFmpegEngine) run(ctx context.Context, dir string, args ...string) error {
	var outbuf, errbuf bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Stdout = &outbuf
	cmd.Stderr = &errbuf
	err := cmd.Run()
	if err != nil {
		err = errors.WithStack(err)
		e.logger.Errorw("ffmpeg failed",
			"args", args,
			"stdout", outbuf.String(),
			"stderr", errbuf.String(),
			"error", err)
	}
	return err
}

func (e *FFmpegEngine) ReadFile(name string) (FileData, error) {
	path, err := e.path(name)
	if err != nil {
		return FileData{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FileData{}, errors.WithStack(err)
	}
	return FileData{Data: data, Encoding: Binary}, nil
}

func (e *FFmpegEngine) DeleteFile(name string) error {
	path, err := e.path(name)
	if err != nil {
		return err
	}
	return errors.WithStack(os.Remove(path))
}

func (e *FFmpegEngine) Files() ([]string, error) {
	if e.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

// Close removes the scratch directory.
func (e *FFmpegEngine) Close() error {
	if e.dir == "" {
		return nil
	}
	return errors.WithStack(os.RemoveAll(e.dir))
}
