// Command model-estimation fits the source parameters of an XML document to
// a mixture covariance file by generalized EM and writes the updated document.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"srcsep"
)

func main() {
	workers := flag.Int("workers", 0, "worker goroutines per parallel stage (0 = one per CPU)")
	report := flag.String("report", "", "write the per-iteration log-likelihood trace to this JSON file")
	quiet := flag.Bool("q", false, "hide the progress bar")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\t%s [flags] input-xml-file input-bin-file output-xml-file\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(1)
	}
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := run(flag.Arg(0), flag.Arg(1), flag.Arg(2), *report, *workers, !*quiet); err != nil {
		logrus.WithError(err).Fatal("model-estimation failed")
	}
}

func run(xmlIn, binFile, xmlOut, reportFile string, workers int, progress bool) error {
	doc, err := srcsep.LoadDocument(xmlIn)
	if err != nil {
		return err
	}
	sources, err := doc.Sources()
	if err != nil {
		return err
	}
	rx, err := srcsep.ReadCovarianceFile(binFile)
	if err != nil {
		return err
	}
	// dimension mismatches abort before any iteration
	if err := sources.CheckCovariance(rx); err != nil {
		return err
	}

	cfg := doc.Config()
	cfg.Workers = workers
	iterations := cfg.IterationCount()

	est := srcsep.NewEstimator(cfg, logrus.StandardLogger())
	var (
		p   *mpb.Progress
		bar *mpb.Bar
	)
	if progress {
		p = mpb.New(mpb.WithWidth(64))
		bar = p.AddBar(int64(iterations),
			mpb.PrependDecorators(
				decor.Name("GEM: "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
			),
		)
		start := time.Now()
		est.OnIteration = func(srcsep.IterationStat) {
			bar.EwmaIncrement(time.Since(start))
			start = time.Now()
		}
	}

	rep, err := est.Run(sources, rx)
	if p != nil {
		if err != nil {
			bar.Abort(false)
		}
		p.Wait()
	}
	if err != nil {
		return err
	}

	if err := doc.ReplaceSources(sources); err != nil {
		return err
	}
	if err := doc.Write(xmlOut); err != nil {
		return err
	}
	if reportFile != "" {
		f, err := os.Create(reportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := rep.Write(f); err != nil {
			return err
		}
	}
	if ll, ok := rep.Final(); ok {
		logrus.WithFields(logrus.Fields{"loglik": ll, "file": xmlOut}).Info("parameters written")
	}
	return nil
}
