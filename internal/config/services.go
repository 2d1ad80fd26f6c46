package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type serviceEndpoint struct {
	URL string `yaml:"url"`
}

type servicesFile struct {
	Services struct {
		Text       serviceEndpoint `yaml:"text"`
		Face       serviceEndpoint `yaml:"face"`
		Voice      serviceEndpoint `yaml:"voice"`
		Transcribe serviceEndpoint `yaml:"transcribe"`
	} `yaml:"services"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// applyServicesFile overlays classifier endpoints from a YAML file.
// Only non-empty entries override the environment.
func applyServicesFile(path string, cfg *ClassifierConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open classifiers config %s: %w", path, err)
	}
	defer f.Close()

	var doc servicesFile
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return fmt.Errorf("decode classifiers config %s: %w", path, err)
	}

	override := func(dst *string, src string) {
		if v := trimURL(src); v != "" {
			*dst = v
		}
	}
	override(&cfg.TextURL, doc.Services.Text.URL)
	override(&cfg.FaceURL, doc.Services.Face.URL)
	override(&cfg.VoiceURL, doc.Services.Voice.URL)
	override(&cfg.TranscribeURL, doc.Services.Transcribe.URL)
	if doc.TimeoutSeconds > 0 {
		cfg.Timeout = DurSeconds(doc.TimeoutSeconds)
	}
	return nil
}
