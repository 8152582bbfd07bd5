package srcsep

import (
	"github.com/mkb218/gosndfile/sndfile"
	"github.com/pkg/errors"
)

type wavWriter struct {
	f        *sndfile.File
	channels int
}

// NewWavWriter creates a 16-bit PCM WAV file.
func NewWavWriter(fileName string, channels, sampleRate int) (*wavWriter, error) {
	var i sndfile.Info
	i.Format = sndfile.SF_FORMAT_WAV | sndfile.SF_FORMAT_PCM_16
	i.Channels = int32(channels)
	i.Samplerate = int32(sampleRate)
	f, err := sndfile.Open(fileName, sndfile.Write, &i)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", fileName)
	}
	return &wavWriter{f: f, channels: channels}, nil
}

func (w *wavWriter) Write(a Audio) error {
	if a.NumChannels() != w.channels {
		return inconsistent("output channels", w.channels, a.NumChannels())
	}
	_, err := w.f.WriteItems(a.interleaved())
	return err
}

func (w *wavWriter) Close() error {
	return w.f.Close()
}

// WriteAudio writes a to fileName as a 16-bit PCM WAV.
func WriteAudio(fileName string, a Audio) error {
	w, err := NewWavWriter(fileName, a.NumChannels(), a.SampleRate)
	if err != nil {
		return err
	}
	if err := w.Write(a); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
