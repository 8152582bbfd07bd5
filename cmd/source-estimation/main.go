// Command source-estimation reconstructs every source of a parameter
// document from the mixture by Wiener filtering and writes one WAV per source.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"srcsep"
)

func main() {
	rate := flag.Int("rate", 0, "resample the mixture to this rate (Hz) before filtering")
	workers := flag.Int("workers", 0, "worker goroutines per parallel stage (0 = one per CPU)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\t%s [flags] input-wav-file input-xml-file output-wav-dir\n", os.Args[0])
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

	if err := run(flag.Arg(0), flag.Arg(1), flag.Arg(2), *rate, *workers); err != nil {
		logrus.WithError(err).Fatal("source-estimation failed")
	}
}

func run(wavFile, xmlFile, dir string, rate, workers int) error {
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
	sources, err := doc.Sources()
	if err != nil {
		return err
	}

	t, err := srcsep.NewTransform(doc.Config())
	if err != nil {
		return err
	}
	defer t.Close()
	out, err := sources.Separate(x, t, workers)
	if err != nil {
		return err
	}

	for j, y := range out {
		name := filepath.Join(dir, srcsep.OutputName(sources.Source(j), j))
		if err := srcsep.WriteAudio(name, y); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"source": j,
			"file":   name,
		}).Info("source written")
	}
	return nil
}
