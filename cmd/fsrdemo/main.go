// Command fsrdemo upscales a PNG image through the two-pass upscaler.
//
// Usage:
//
//	fsrdemo -in frame.png -out frame_up.png -scale 1.5 -sharpness 0.2
//	fsrdemo -backend noop -frames 3 -v
//	fsrdemo -backend software -trace
//
// Without -in a test pattern is generated.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/pkg/profile"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/backend"
	_ "github.com/gogpu/fsr/backend/native"
	_ "github.com/gogpu/fsr/backend/software"
	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/pool"
)

func main() {
	if err := execute(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// execute parses args and runs the demo. Every failure is returned so the
// deferred profile and backend cleanup runs before the process exits.
func execute(args []string) error {
	fs := flag.NewFlagSet("fsrdemo", flag.ContinueOnError)
	var (
		input     = fs.String("in", "", "input PNG (default: generated test pattern)")
		output    = fs.String("out", "fsr.png", "output PNG")
		scale     = fs.Float64("scale", 1.5, "output size relative to the input")
		width     = fs.Int("width", 0, "output width, overrides -scale")
		height    = fs.Int("height", 0, "output height, overrides -scale")
		sharpness = fs.Float64("sharpness", -1, "sharpness in stops, 0 is sharpest (default from config)")
		config    = fs.String("config", "", "settings file (.toml, .yaml)")
		backendID = fs.String("backend", "", "backend name (default: best available; one of "+strings.Join(backend.Available(), ", ")+")")
		frames    = fs.Int("frames", 1, "number of frames to render")
		prof      = fs.String("profile", "", "write a cpu or mem profile to the current directory")
		trace     = fs.Bool("trace", false, "print the recorded commands (software backend)")
		verbose   = fs.Bool("v", false, "debug logging")
		version   = fs.Bool("version", false, "print the plugin description and exit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *version {
		d := fsr.PluginDescription()
		fmt.Printf("%s\n%s (%s) by %s\n%s\n", d, d.Description, d.Category, d.Author, d.RepositoryURL)
		return nil
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	fsr.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	switch *prof {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		return fmt.Errorf("unknown profile %q (want cpu or mem)", *prof)
	}

	settings := fsr.DefaultSettings()
	if *config != "" {
		var err error
		if settings, err = fsr.LoadSettings(*config); err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
	}
	if *sharpness >= 0 {
		settings.Sharpness = float32(*sharpness)
	}
	opts, err := settings.Options()
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	src, err := loadInput(*input)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	outW, outH := *width, *height
	if outW <= 0 || outH <= 0 {
		outW = int(float64(src.Bounds().Dx())**scale + 0.5)
		outH = int(float64(src.Bounds().Dy())**scale + 0.5)
	}

	b, err := openBackend(*backendID)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer b.Close()

	return run(b, src, outW, outH, *frames, *trace, *output, opts)
}

func openBackend(name string) (backend.Backend, error) {
	if name == "" {
		return backend.InitDefault()
	}
	return backend.Open(name)
}

func run(b backend.Backend, src image.Image, outW, outH, frames int, trace bool, path string, opts []fsr.UpscalerOption) error {
	format := gputypes.TextureFormatRGBA8Unorm

	// Wait for an asynchronously loading program so the first frame is
	// not a pass-through.
	if w, ok := b.Program().(interface{ Wait(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.Wait(ctx)
		cancel()
		if err != nil {
			log.Printf("Program failed to load, frames will pass through: %v", err)
		}
	}

	in, err := b.Upload(src, format)
	if err != nil {
		return fmt.Errorf("upload input: %w", err)
	}
	defer b.DestroyTexture(in)
	out, err := b.CreateTexture(gpucore.TextureDesc{
		Width:  uint32(outW),
		Height: uint32(outH),
		Format: format,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer b.DestroyTexture(out)

	textures := pool.New(b)
	defer textures.Close()

	u, err := fsr.NewUpscaler(b.Program(), textures, b, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	for i := range frames {
		rec, err := b.NewRecorder()
		if err != nil {
			return err
		}
		outcome, err := u.Render(rec, fsr.Frame{Input: in, Output: out})
		if err != nil {
			log.Printf("Frame %d: %v (%v)", i, outcome, err)
		}
		if err := rec.Submit(); err != nil {
			return fmt.Errorf("frame %d: submit: %w", i, err)
		}
		if t, ok := rec.(interface{ Trace() []string }); ok && trace {
			fmt.Println(strings.Join(t.Trace(), "\n"))
		}
	}
	elapsed := time.Since(start)

	s := u.Stats()
	log.Printf("%s: %d frames %dx%d -> %dx%d in %v (upscaled %d, passthrough %d, dropped %d)",
		b.Name(), frames, in.Width(), in.Height(), outW, outH, elapsed, s.Upscaled, s.PassThrough, s.Dropped)
	log.Printf("%s", textures.Stats())

	img, err := b.Download(out)
	if err != nil {
		return fmt.Errorf("download output: %w", err)
	}
	if err := savePNG(path, img); err != nil {
		return err
	}
	log.Printf("Saved %s", path)
	return nil
}

func loadInput(path string) (image.Image, error) {
	if path == "" {
		return testPattern(320, 180), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// testPattern draws a checkerboard over a horizontal gradient, which shows
// both edge handling and smooth-region resampling.
func testPattern(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			g := uint8(x * 255 / max(w-1, 1))
			c := color.RGBA{R: g, G: 64, B: 255 - g, A: 255}
			if (x/16+y/16)%2 == 0 {
				c = color.RGBA{R: 240, G: 240, B: 240, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
