package fpgadma

import (
	"io"
	"os"

	"github.com/go-yaml/yaml"
)

// LoadLayout converts a (path to a) yaml file into a GlobalStartConfig.
// Counts left out of the file are taken from the length of the lists;
// a count of 0 leaves that channel alone.
//
// A layout looks like:
//
//	ChannelCount: 2
//	StartCycle: true
//	Channels:
//	  - Descriptors:
//	      - {BufferSize: 4096, InterruptEnable: 1}
//	      - {BufferSize: 4096}
//	  - Descriptors:
//	      - {BufferSize: 65536, InterruptEnable: 1}
func LoadLayout(path string) (GlobalStartConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return GlobalStartConfig{}, err
	}
	defer f.Close()
	return DecodeLayout(f)
}

// DecodeLayout is LoadLayout for any reader
func DecodeLayout(r io.Reader) (GlobalStartConfig, error) {
	cfg := GlobalStartConfig{}
	err := yaml.NewDecoder(r).Decode(&cfg)
	if err == io.EOF {
		err = nil
	}
	return cfg, err
}

// EncodeLayout writes cfg as yaml
func EncodeLayout(w io.Writer, cfg GlobalStartConfig) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
