package srcsep

import (
	"github.com/mkb218/gosndfile/sndfile"
	"github.com/pkg/errors"
)

// Audio is a multichannel signal stored channel by channel.
type Audio struct {
	Channels   [][]float64
	SampleRate int
}

// NewAudio returns a silent signal.
func NewAudio(channels, samples, rate int) Audio {
	a := Audio{Channels: make([][]float64, channels), SampleRate: rate}
	for c := range a.Channels {
		a.Channels[c] = make([]float64, samples)
	}
	return a
}

func (a Audio) NumChannels() int { return len(a.Channels) }

// Len returns the number of samples per channel.
func (a Audio) Len() int {
	if len(a.Channels) == 0 {
		return 0
	}
	return len(a.Channels[0])
}

// interleaved returns the samples frame by frame.
func (a Audio) interleaved() []float64 {
	ch := a.NumChannels()
	out := make([]float64, a.Len()*ch)
	for c, s := range a.Channels {
		for i, v := range s {
			out[i*ch+c] = v
		}
	}
	return out
}

// ReadAudio decodes a sound file into floating point samples.
func ReadAudio(fileName string) (Audio, error) {
	info := &sndfile.Info{}
	file, err := sndfile.Open(fileName, sndfile.Read, info)
	if err != nil {
		return Audio{}, errors.Wrapf(err, "open %s", fileName)
	}
	defer file.Close()

	if !sndfile.FormatCheck(*info) {
		return Audio{}, errors.Errorf("%s: bad format", fileName)
	}
	channels := int(info.Channels)
	frames := int(info.Frames)

	buf := make([]float64, frames*channels)
	read, err := file.ReadFrames(buf)
	if err != nil {
		return Audio{}, errors.Wrapf(err, "read %s", fileName)
	}

	a := NewAudio(channels, int(read), int(info.Samplerate))
	for i := 0; i < int(read); i++ {
		for c := 0; c < channels; c++ {
			a.Channels[c][i] = buf[i*channels+c]
		}
	}
	return a, nil
}
