// Command autorotate reports, and optionally applies, the rotation that makes
// the text of scanned pages read upright.
//
// Usage: autorotate [options] <image>...
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"scanrotate/internal/autorotate"
	"scanrotate/internal/diag"
	"scanrotate/internal/image"
	"scanrotate/internal/ocr"
	"scanrotate/internal/settings"
	"scanrotate/internal/version"
)

var (
	flagPrefs     = flag.String("prefs", settings.DefaultPath(), "Preferences file (.json, .toml or .yaml)")
	flagLang      = flag.String("lang", "", "Set the recognizer language preference before running (e.g. en-US)")
	flagFormat    = flag.String("format", "", "Format used for the trial encodes (png, jpeg, tiff, bmp); default is each file's own")
	flagMinChars  = flag.Int("min-chars", autorotate.DefaultMinimumTextLength, "Minimum recognized characters to trust an orientation")
	flagTimeout   = flag.Duration("timeout", 0, "Per-recognition timeout, 0 for none")
	flagCodec     = flag.String("codec", "mat", "Image codec: mat (OpenCV) or pure (Go)")
	flagTessdata  = flag.String("tessdata", "", "Tesseract data directory (default: TESSDATA_PREFIX or system)")
	flagWrite     = flag.Bool("write", false, "Save rotated copies as <name>.rotated.<ext>")
	flagListLangs = flag.Bool("list-langs", false, "List installed recognizer languages and exit")
	flagLogFormat = flag.String("log-format", "text", "Log format: text or json")
	flagVerbose   = flag.Bool("v", false, "Verbose output")
	flagVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *flagVersion {
		fmt.Println(version.String("autorotate"))
		return
	}
	if flag.NArg() < 1 && !*flagListLangs {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <image>...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := "warn"
	if *flagVerbose {
		level = "debug"
	}
	logger, err := diag.NewLogger(level, *flagLogFormat, os.Stderr)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger, flag.Args()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *logrus.Logger, paths []string) error {
	prefs, err := settings.Load(*flagPrefs, logger)
	if err != nil {
		return err
	}

	codec, err := newCodec(*flagCodec)
	if err != nil {
		return err
	}
	counter := image.NewCounter(codec)

	factory := ocr.NewTesseractFactory(logger)
	factory.TessdataPrefix = *flagTessdata

	svc, err := autorotate.New(ctx, autorotate.Deps{
		Factory:  factory,
		Codec:    counter,
		Encoder:  image.DefaultEncoder(),
		Settings: prefs,
		Logger:   logger,
		Tracker:  diag.LogTracker{Logger: logger},
	}, autorotate.Options{
		MinimumTextLength: *flagMinChars,
		RecognizeTimeout:  *flagTimeout,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	if *flagLang != "" {
		// Goes through the change notification like an edit in the
		// preferences file would.
		prefs.SetString(settings.KeyAutoRotateLanguage, *flagLang)
	}

	if *flagListLangs {
		listLanguages(svc)
		return nil
	}

	// Pick up edits to the preferences file during long batches.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		if err := prefs.Watch(watchCtx); err != nil {
			logger.WithError(err).Debug("Not watching preferences file")
		}
	}()

	if !prefs.Bool(settings.KeyAutoRotate, true) {
		log.Printf("Auto-rotation is disabled in %s", prefs.Path())
		return nil
	}
	if lang, ok := svc.CurrentLanguage(); ok {
		log.Printf("Recognizer language: %s", lang)
	} else {
		log.Printf("No recognizer language available; pages will be left as scanned")
	}

	failed := 0
	for _, path := range paths {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := processFile(ctx, svc, counter, path); err != nil {
			log.Printf("%s: %v", path, err)
			failed++
		}
	}

	if *flagVerbose {
		log.Printf("Outstanding codec resources: %d", counter.Outstanding())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

func newCodec(name string) (image.Codec, error) {
	switch strings.ToLower(name) {
	case "mat", "opencv":
		return image.MatCodec{}, nil
	case "pure", "go":
		return image.PureCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q (want mat or pure)", name)
}

func processFile(ctx context.Context, svc *autorotate.Service, codec image.Codec, path string) error {
	if !image.IsSupportedFormat(path) {
		return image.ErrUnsupportedFormat
	}
	scan, err := image.Load(path)
	if err != nil {
		return err
	}

	encodeFormat := scan.Format
	if *flagFormat != "" {
		if encodeFormat, err = image.ParseFormat(*flagFormat); err != nil {
			return err
		}
	}

	src, err := sourceBitmap(scan)
	if err != nil {
		return err
	}
	defer src.Close()

	rotation := svc.DetermineRotation(ctx, src, encodeFormat)
	b := scan.Image.Bounds()
	if scan.DPI > 0 {
		fmt.Printf("%s\t%d\t%dx%d @ %.0f dpi\n", path, rotation.Degrees(), b.Dx(), b.Dy(), scan.DPI)
	} else {
		fmt.Printf("%s\t%d\t%dx%d\n", path, rotation.Degrees(), b.Dx(), b.Dy())
	}

	if !*flagWrite || rotation == image.RotationNone {
		return nil
	}
	return writeRotated(ctx, codec, src, scan, rotation)
}

func sourceBitmap(scan *image.Scan) (image.Bitmap, error) {
	if strings.ToLower(*flagCodec) == "pure" || strings.ToLower(*flagCodec) == "go" {
		return scan.Bitmap(), nil
	}
	return image.MatFromImage(scan.Image)
}

// writeRotated saves src turned by r next to the scan in its own format.
func writeRotated(ctx context.Context, codec image.Codec, src image.Bitmap, scan *image.Scan, r image.Rotation) error {
	stream, err := codec.Encode(ctx, src, image.EncodeOptions{
		Format:         scan.Format,
		JPEGQuality:    95,
		PNGCompression: png.DefaultCompression,
	}, r)
	if err != nil {
		return err
	}
	defer stream.Close()

	out := rotatedPath(scan.Path, scan.Format)
	if err := os.WriteFile(out, stream.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	log.Printf("Wrote %s", out)
	return nil
}

// rotatedPath names the copy after the scan, with the canonical extension of
// the format it is written in.
func rotatedPath(path string, f image.Format) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".rotated" + f.Ext()
}

func listLanguages(svc *autorotate.Service) {
	def, hasDefault := svc.DefaultLanguage()
	current, hasCurrent := svc.CurrentLanguage()
	for _, lang := range svc.AvailableLanguages() {
		var marks []string
		if hasDefault && sameModel(lang.Tag, def.Tag) {
			marks = append(marks, "default")
		}
		if hasCurrent && sameModel(lang.Tag, current.Tag) {
			marks = append(marks, "current")
		}
		if len(marks) > 0 {
			fmt.Printf("%-10s %s [%s]\n", lang.Tag, lang.DisplayName, strings.Join(marks, ", "))
		} else {
			fmt.Printf("%-10s %s\n", lang.Tag, lang.DisplayName)
		}
	}
}

// sameModel reports whether two tags load the same traineddata, so that a
// host locale like en-US matches the catalog entry en.
func sameModel(a, b string) bool {
	ca, errA := ocr.TesseractCode(a)
	cb, errB := ocr.TesseractCode(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ca == cb
}
