package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/ycc"
	"github.com/bodgit/ycc/colorspace"
	"github.com/bodgit/ycc/container"
	"github.com/bodgit/ycc/metrics"
	"github.com/bodgit/ycc/quant"
	"github.com/bodgit/ycc/raster"
	"github.com/urfave/cli/v2"
)

const defaultDB = "ycc.db"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func decodeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rounding",
			EnvVars: []string{"YCC_ROUNDING"},
			Value:   colorspace.HalfAwayFromZero.String(),
			Usage:   "tie-breaking rule, half-away or half-even",
		},
		&cli.BoolFlag{
			Name:  "parallel",
			Value: true,
			Usage: "process the three channels concurrently",
		},
	}
}

func codecFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.IntFlag{
			Name:    "y-modulus",
			EnvVars: []string{"YCC_Y_MODULUS"},
			Value:   ycc.DefaultModuli.Y,
			Usage:   "quantization step for the Y channel",
		},
		&cli.IntFlag{
			Name:    "cb-modulus",
			EnvVars: []string{"YCC_CB_MODULUS"},
			Value:   ycc.DefaultModuli.Cb,
			Usage:   "quantization step for the Cb channel",
		},
		&cli.IntFlag{
			Name:    "cr-modulus",
			EnvVars: []string{"YCC_CR_MODULUS"},
			Value:   ycc.DefaultModuli.Cr,
			Usage:   "quantization step for the Cr channel",
		},
	}, decodeFlags()...)
}

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(io.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

func newCodec(c *cli.Context, encode bool) (*ycc.Codec, error) {
	rounding, err := colorspace.ParseRounding(c.String("rounding"))
	if err != nil {
		return nil, err
	}

	opts := ycc.DefaultOptions()
	// Decoding does not quantize so only encoding commands take moduli
	if encode {
		opts.Moduli = quant.Moduli{
			Y:  c.Int("y-modulus"),
			Cb: c.Int("cb-modulus"),
			Cr: c.Int("cr-modulus"),
		}
	}
	opts.Rounding = rounding
	opts.Parallel = c.Bool("parallel")

	if c.IsSet("format") {
		if opts.Format, err = container.ParseFormat(c.String("format")); err != nil {
			return nil, err
		}
	}
	if c.IsSet("workers") {
		opts.Workers = c.Int("workers")
	}

	return ycc.New(opts, newLogger(c))
}

func printReport(w io.Writer, r *ycc.Result, bandwidth float64) {
	rep := r.Report
	fmt.Fprintf(w, "%s -> %s\n", r.Source, r.Destination)
	fmt.Fprintf(w, "  shape:       %v\n", rep.Shape)
	fmt.Fprintf(w, "  moduli:      %v (%v)\n", r.Moduli, r.Rounding)
	for _, name := range raster.Names {
		fmt.Fprintf(w, "  %-2s channel:  %d runs, entropy %.2f bits\n", name, rep.Runs[name], rep.Entropy[name])
	}
	fmt.Fprintf(w, "  size:        %d -> %d bytes (%.2f:1)\n", rep.RawSize, rep.CompressedSize, rep.Ratio())
	fmt.Fprintf(w, "  entropy:     %.2f bits\n", rep.EntropyRGB)
	fmt.Fprintf(w, "  PSNR:        %.2f dB\n", rep.PSNR)
	fmt.Fprintf(w, "  SSIM:        %.4f\n", rep.SSIM)
	fmt.Fprintf(w, "  delta E:     %.2f\n", rep.DeltaE)
	if bandwidth > 0 {
		fmt.Fprintf(w, "  transmit:    %v raw, %v compressed\n",
			metrics.TransmissionTime(rep.RawSize, bandwidth),
			metrics.TransmissionTime(rep.CompressedSize, bandwidth))
	}
}

func writePNG(path string, m image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return png.Encode(f, m)
}

func openDB(c *cli.Context, codec *ycc.Codec) (*ycc.ReportDB, error) {
	if !c.Bool("record") {
		return nil, nil
	}
	db, err := ycc.NewReportDB(c.String("db"))
	if err != nil {
		return nil, err
	}
	codec.SetReportDB(db)
	return db, nil
}

func newApp() (*cli.App, error) {
	app := cli.NewApp()

	app.Name = "ycc"
	app.Usage = "YCbCr quantization and run-length image codec"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"YCC_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to encode history database",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	recordFlag := &cli.BoolFlag{
		Name:  "record",
		Usage: "record the encode in the history database",
	}
	bandwidthFlag := &cli.Float64Flag{
		Name:  "bandwidth",
		Usage: "link speed in bits per second used to estimate transmission time",
	}

	app.Commands = []*cli.Command{
		{
			Name:        "encode",
			Usage:       "Encode an image into a container",
			Description: "The container format is chosen from the extension of the output file, .ycc or .npz.",
			ArgsUsage:   "FILE [OUTPUT]",
			Flags: append(codecFlags(),
				&cli.StringFlag{
					Name:  "format",
					Value: container.Native.String(),
					Usage: "container format when no output file is given, native or npz",
				},
				&cli.BoolFlag{
					Name:  "report",
					Usage: "print compression and quality measurements",
				},
				recordFlag,
				bandwidthFlag,
			),
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				codec, err := newCodec(c, true)
				if err != nil {
					return cli.Exit(err, 1)
				}

				db, err := openDB(c, codec)
				if err != nil {
					return cli.Exit(err, 1)
				}
				if db != nil {
					defer db.Close()
				}

				r, err := codec.EncodeFile(c.Args().First(), c.Args().Get(1))
				if err != nil {
					return cli.Exit(err, 1)
				}

				if c.Bool("report") {
					printReport(c.App.Writer, r, c.Float64("bandwidth"))
				}

				return nil
			},
		},
		{
			Name:        "decode",
			Usage:       "Restore an image from a container",
			Description: "The image format is chosen from the extension of the output file: .ppm, .png, .jpg, .gif or .bmp. The rounding rule is not stored in the container and should match the one used to encode.",
			ArgsUsage:   "FILE OUTPUT",
			Flags:       decodeFlags(),
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				codec, err := newCodec(c, false)
				if err != nil {
					return cli.Exit(err, 1)
				}

				if err := codec.DecodeFile(c.Args().Get(0), c.Args().Get(1)); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:      "info",
			Usage:     "Describe a container",
			ArgsUsage: "FILE",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				file := c.Args().First()
				ct, err := container.ReadFile(file)
				if err != nil {
					return cli.Exit(err, 1)
				}
				info, err := os.Stat(file)
				if err != nil {
					return cli.Exit(err, 1)
				}

				w := c.App.Writer
				fmt.Fprintf(w, "%s: %v container, %d bytes\n", file, container.FormatForPath(file), info.Size())
				fmt.Fprintf(w, "  shape: %v\n", ct.Shape)
				for _, name := range raster.Names {
					runs, _ := ct.Runs(name)
					fmt.Fprintf(w, "  %-2s:    %d runs\n", name, len(runs))
				}
				fmt.Fprintf(w, "  ratio: %.2f:1\n", metrics.CompressionRatio(int64(ct.Shape.Len()*3), info.Size()))

				return nil
			},
		},
		{
			Name:      "compare",
			Usage:     "Measure the distortion between two images",
			ArgsUsage: "ORIGINAL DECODED",
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				a, err := ycc.ReadImage(c.Args().Get(0))
				if err != nil {
					return cli.Exit(err, 1)
				}
				b, err := ycc.ReadImage(c.Args().Get(1))
				if err != nil {
					return cli.Exit(err, 1)
				}

				psnr, err := metrics.PSNR(a, b)
				if err != nil {
					return cli.Exit(err, 1)
				}
				ssim, err := metrics.SSIM(a, b)
				if err != nil {
					return cli.Exit(err, 1)
				}
				deltaE, err := metrics.DeltaE(a, b)
				if err != nil {
					return cli.Exit(err, 1)
				}

				w := c.App.Writer
				fmt.Fprintf(w, "PSNR:    %.2f dB\n", psnr)
				fmt.Fprintf(w, "SSIM:    %.4f\n", ssim)
				fmt.Fprintf(w, "delta E: %.2f\n", deltaE)
				fmt.Fprintf(w, "entropy: %.2f -> %.2f bits\n", metrics.EntropyRGB(a), metrics.EntropyRGB(b))

				return nil
			},
		},
		{
			Name:      "preview",
			Usage:     "Render one channel of a container as a grayscale PNG",
			ArgsUsage: "FILE OUTPUT",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "channel",
					Value: raster.Y,
					Usage: "channel to render, Y, Cb or Cr",
				},
				&cli.IntFlag{
					Name:  "width",
					Usage: "scale the preview to this width",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				ct, err := container.ReadFile(c.Args().Get(0))
				if err != nil {
					return cli.Exit(err, 1)
				}

				m, err := ycc.Preview(ct, c.String("channel"), c.Int("width"))
				if err != nil {
					return cli.Exit(err, 1)
				}

				if err := writePNG(c.Args().Get(1), m); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "scan",
			Usage:       "Encode every PPM image below a directory",
			Description: "Each container is written next to its source image.",
			ArgsUsage:   "DIRECTORY",
			Flags: append(codecFlags(),
				&cli.StringFlag{
					Name:  "format",
					Value: container.Native.String(),
					Usage: "container format, native or npz",
				},
				&cli.IntFlag{
					Name:  "workers",
					Value: 4,
					Usage: "number of images to encode at once",
				},
				&cli.BoolFlag{
					Name:  "report",
					Usage: "print compression and quality measurements",
				},
				recordFlag,
				bandwidthFlag,
			),
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				codec, err := newCodec(c, true)
				if err != nil {
					return cli.Exit(err, 1)
				}

				db, err := openDB(c, codec)
				if err != nil {
					return cli.Exit(err, 1)
				}
				if db != nil {
					defer db.Close()
				}

				results, err := codec.Scan(context.Background(), c.Args().First())
				if err != nil {
					return cli.Exit(err, 1)
				}

				for _, r := range results {
					if c.Bool("report") {
						printReport(c.App.Writer, r, c.Float64("bandwidth"))
						continue
					}
					fmt.Fprintln(c.App.Writer, r.Destination)
				}

				return nil
			},
		},
		{
			Name:        "history",
			Usage:       "Show recorded encodes",
			Description: "With no argument every recorded encode is listed, otherwise only those of the image with the given SHA-1.",
			ArgsUsage:   "[SHA1]",
			Action: func(c *cli.Context) error {
				db, err := ycc.NewReportDB(c.String("db"))
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer db.Close()

				var results []*ycc.Result
				if c.NArg() > 0 {
					results, err = db.History(strings.ToUpper(c.Args().First()))
				} else {
					results, err = db.List()
				}
				if err != nil {
					return cli.Exit(err, 1)
				}

				for _, r := range results {
					fmt.Fprintf(c.App.Writer, "%s %s %s %v %s %.2f:1 PSNR %.2f dB SSIM %.4f\n",
						r.Time.Format("2006-01-02 15:04:05"), r.SHA1, r.Source, r.Moduli, r.Rounding,
						r.Report.Ratio(), r.Report.PSNR, r.Report.SSIM)
				}

				return nil
			},
		},
	}

	return app, nil
}

func main() {
	app, err := newApp()
	if err != nil {
		log.Fatal(err)
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
