package transcoder

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/graynk/stickerbot/media"
	"github.com/graynk/stickerbot/tools"
)

type State int32

const (
	Unloaded State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return "unknown"
}

const (
	defaultInput   = "image.png"
	overlayInput   = "overlay.png"
	animatedOutput = "output.gif"

	paletteFilter = "split[s0][s1];" +
		"[s0]palettegen=stats_mode=single:transparency_color=000000[p];" +
		"[s1][p]paletteuse=new=1:alpha_threshold=10"
	overlayFilter = "[0][1]overlay=0:0:format=auto,format=rgba"
)

// Transcoder owns one Engine. Operations are queued and executed one at a time,
// because every operation uses the same fixed filenames in the engine's namespace.
type Transcoder struct {
	engine Engine
	state  atomic.Int32
	loadMu sync.Mutex
	worker *tools.Worker
	logger *zap.SugaredLogger
}

func New(engine Engine, queueCapacity int, logger *zap.SugaredLogger) *Transcoder {
	return &Transcoder{
		engine: engine,
		worker: tools.NewWorker(1, queueCapacity),
		logger: logger,
	}
}

func (t *Transcoder) State() State {
	return State(t.state.Load())
}

func (t *Transcoder) IsLoaded() bool {
	return t != nil && t.State() == Ready
}

// Load brings the engine up. Ready is terminal; a failed load goes back to Unloaded.
func (t *Transcoder) Load(ctx context.Context) error {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	if t.IsLoaded() {
		return nil
	}
	t.state.Store(int32(Loading))
	if err := t.engine.Load(ctx); err != nil {
		t.state.Store(int32(Unloaded))
		return errors.Wrap(err, "loading transcoder")
	}
	t.state.Store(int32(Ready))
	return nil
}

// LoadInBackground starts Load without blocking the caller.
func (t *Transcoder) LoadInBackground(ctx context.Context) {
	go func() {
		if err := t.Load(ctx); err != nil {
			t.logger.Errorw("transcoder failed to load", "error", err)
		}
	}()
}

func (t *Transcoder) QueueStats() (int, int) {
	return t.worker.QueueStats()
}

func (t *Transcoder) IsBusy() bool {
	return t.worker.IsBusy()
}

func (t *Transcoder) ToggleMaintenance() bool {
	return t.worker.ToggleMaintenance()
}

// Close waits for queued operations and releases the engine.
func (t *Transcoder) Close() error {
	t.worker.Shutdown()
	if closer, ok := t.engine.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type result struct {
	file *media.File
	err  error
}

func (t *Transcoder) run(ctx context.Context, key string, op func() (*media.File, error)) (*media.File, error) {
	if !t.IsLoaded() {
		return nil, errors.WithStack(tools.EngineNotReadyErr)
	}
	done := make(chan result, 1)
	err := t.worker.Submit(key, func() {
		if err := ctx.Err(); err != nil {
			done <- result{err: err}
			return
		}
		file, err := op()
		done <- result{file: file, err: err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-done:
		return r.file, r.err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for the transcoder")
	}
}

func (t *Transcoder) cleanup(names ...string) {
	for _, name := range names {
		if err := t.engine.DeleteFile(name); err != nil {
			t.logger.Debugw("could not delete virtual file", "name", name, "error", err)
		}
	}
}

func (t *Transcoder) readOutput(name, mimeType string) (*media.File, error) {
	data, err := t.engine.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	if data.Encoding != Binary {
		return nil, errors.Wrapf(tools.TranscodeOutputInvalidErr, "reading %s", name)
	}
	return &media.File{Name: name, MimeType: mimeType, Data: data.Data}, nil
}

func inputName(sourceURL string) string {
	name := media.LastPathSegment(sourceURL, defaultInput)
	if name == ".." || strings.ContainsAny(name, `/\`) {
		return defaultInput
	}
	if name == animatedOutput {
		return "source-" + name
	}
	return name
}

// ToAnimatedRaster converts an animated source into a looping gif, keeping transparency.
// key identifies the requester for queue fairness.
func (t *Transcoder) ToAnimatedRaster(ctx context.Context, key, sourceURL string, src []byte) (*media.File, error) {
	return t.run(ctx, key, func() (*media.File, error) {
		input := inputName(sourceURL)
		defer t.cleanup(input, animatedOutput)

		if err := t.engine.WriteFile(input, src); err != nil {
			return nil, errors.Wrapf(err, "writing %s", input)
		}
		err := t.engine.Exec(ctx,
			"-i", input,
			"-filter_complex", paletteFilter,
			"-loop", "0",
			"-y", animatedOutput)
		if err != nil {
			return nil, errors.Wrap(err, "converting to gif")
		}
		return t.readOutput(animatedOutput, media.GIF)
	})
}

// Composite lays overlay over base at the origin and encodes the result as ext.
func (t *Transcoder) Composite(ctx context.Context, key string, base, overlay []byte, ext string) (*media.File, error) {
	ext = strings.ToLower(ext)
	return t.run(ctx, key, func() (*media.File, error) {
		output := "output." + media.NormalizeRasterExtension(ext)
		defer t.cleanup(defaultInput, overlayInput, output)

		if err := t.engine.WriteFile(defaultInput, base); err != nil {
			return nil, errors.Wrapf(err, "writing %s", defaultInput)
		}
		if err := t.engine.WriteFile(overlayInput, overlay); err != nil {
			return nil, errors.Wrapf(err, "writing %s", overlayInput)
		}
		err := t.engine.Exec(ctx,
			"-i", defaultInput,
			"-i", overlayInput,
			"-filter_complex", overlayFilter,
			"-y", output)
		if err != nil {
			return nil, errors.Wrap(err, "compositing overlay")
		}
		return t.readOutput(output, media.MimeTypeForExtension(ext))
	})
}
