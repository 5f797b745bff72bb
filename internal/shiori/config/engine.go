package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Shiori/internal/shiori/nlp"
)

// Engine is the content of the YAML engine file.
//
//	language: fr
//	lexicon:
//	  contact: '(?:contact|interlocuteur)'
//	matrix:
//	  rooms:
//	    "!abc:example.org": A24-0001
//	    "!lobby:example.org": ""
type Engine struct {
	// Language selects the prompt set: fr (default) or en.
	Language string `yaml:"language"`
	// Lexicon overrides keyword patterns; empty fields keep the defaults.
	Lexicon nlp.Lexicon `yaml:"lexicon"`
	Matrix  struct {
		// Rooms maps room ids to affair ids. An empty affair id serves the
		// room without an affair.
		Rooms map[string]string `yaml:"rooms"`
	} `yaml:"matrix"`
}

// DefaultEngine returns the built-in engine settings.
func DefaultEngine() Engine {
	return Engine{Language: "fr", Lexicon: nlp.DefaultLexicon}
}

// LoadEngine reads and parses the engine file at path.
func LoadEngine(path string) (Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("config: read engine file: %w", err)
	}
	return ParseEngine(data)
}

// ParseEngine decodes an engine file, rejecting unknown keys. Missing
// settings take their default.
func ParseEngine(data []byte) (Engine, error) {
	var e Engine
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&e); err != nil && !errors.Is(err, io.EOF) {
		return Engine{}, fmt.Errorf("%w: engine file: %v", ErrInvalid, err)
	}
	switch e.Language {
	case "":
		e.Language = "fr"
	case "fr", "en":
	default:
		return Engine{}, fmt.Errorf("%w: engine file: language %q is not one of fr, en", ErrInvalid, e.Language)
	}
	e.Lexicon = e.Lexicon.Merge(nlp.DefaultLexicon)
	return e, nil
}

// Patterns compiles the engine lexicon.
func (e Engine) Patterns() (*nlp.Patterns, error) {
	return e.Lexicon.Compile()
}
