// Command comp-rx computes the local spatial covariance of a mixture and
// writes it in the binary covariance format.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"srcsep"
)

func main() {
	rate := flag.Int("rate", 0, "resample the mixture to this rate (Hz) before analysis")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\t%s [flags] input-wav-file input-xml-file output-bin-file\n", os.Args[0])
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

	if err := run(flag.Arg(0), flag.Arg(1), flag.Arg(2), *rate); err != nil {
		logrus.WithError(err).Fatal("comp-rx failed")
	}
}

func run(wavFile, xmlFile, binFile string, rate int) error {
	x, err := srcsep.ReadAudio(wavFile)
	if err != nil {
		return err
	}
	if rate > 0 {
		if x, err = srcsep.Resample(x, rate); err != nil {
			return err
		}
	}
	doc, err := srcsep.LoadDocument(xmlFile)
	if err != nil {
		return err
	}
	cfg := doc.Config()
	logrus.WithFields(logrus.Fields{
		"channels": x.NumChannels(),
		"samples":  x.Len(),
		"rate":     x.SampleRate,
		"tfr":      cfg.TFR,
		"wlen":     cfg.WindowLength,
		"nbin":     cfg.Bins,
	}).Debug("computing mixture covariance")

	rx, err := srcsep.ComputeMixtureCovariance(x, cfg)
	if err != nil {
		return err
	}
	if err := srcsep.WriteCovarianceFile(binFile, rx); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"bins":   rx.Bins(),
		"frames": rx.Frames(),
		"file":   binFile,
	}).Info("covariance written")
	return nil
}
