package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/unamentis/kbharness/internal/generator"
	"github.com/unamentis/kbharness/internal/harness"
	"github.com/unamentis/kbharness/internal/validate"
	"github.com/unamentis/kbharness/pkg/provider/tts"
	"gopkg.in/yaml.v3"
)

// suiteDoc is the on-disk YAML shape of a test suite. It differs from
// [harness.TestSuite] in that audio sources and validation settings are
// declarative blocks rather than Go values.
type suiteDoc struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Repetitions int       `yaml:"repetitions"`
	Cases       []caseDoc `yaml:"cases"`
}

type caseDoc struct {
	ID                string              `yaml:"id"`
	Name              string              `yaml:"name"`
	Question          harness.KBQuestion  `yaml:"question"`
	ExpectedAnswer    string              `yaml:"expectedAnswer"`
	AcceptableAnswers []string            `yaml:"acceptableAnswers"`
	AnswerType        validate.AnswerType `yaml:"answerType"`
	Source            sourceDoc           `yaml:"source"`

	// Preset selects a canonical validation configuration. Mutually
	// exclusive with Validation.
	Preset Preset `yaml:"preset"`

	// Validation spells out the full validation block. Overrides any preset.
	Validation *validate.ValidationConfig `yaml:"validation"`
}

// sourceDoc declares where a case's audio comes from. Type selects the
// variant; the remaining fields apply to specific types only.
type sourceDoc struct {
	// Type is one of "tts", "file", or "resource".
	Type string `yaml:"type"`

	// Provider and Voice apply to type "tts".
	Provider string `yaml:"provider"`
	Voice    string `yaml:"voice"`

	// Path applies to type "file".
	Path string `yaml:"path"`

	// Name and Extension apply to type "resource".
	Name      string `yaml:"name"`
	Extension string `yaml:"extension"`
}

// LoadSuite reads the suite YAML file at path. Cases that specify neither a
// preset nor a validation block fall back to defaultPreset (empty means
// standard).
func LoadSuite(path string, defaultPreset Preset) (*harness.TestSuite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open suite %q: %w", path, err)
	}
	defer f.Close()

	suite, err := LoadSuiteFromReader(f, defaultPreset)
	if err != nil {
		return nil, fmt.Errorf("config: parse suite %q: %w", path, err)
	}
	return suite, nil
}

// LoadSuiteFromReader decodes a suite YAML document from r, validates it, and
// converts it into a runnable [harness.TestSuite].
func LoadSuiteFromReader(r io.Reader, defaultPreset Preset) (*harness.TestSuite, error) {
	doc := &suiteDoc{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("config: decode suite yaml: %w", err)
	}
	if err := validateSuite(doc); err != nil {
		return nil, err
	}

	suite := &harness.TestSuite{
		ID:          doc.ID,
		Name:        doc.Name,
		Repetitions: doc.Repetitions,
		Cases:       make([]harness.TestCase, 0, len(doc.Cases)),
	}
	for _, c := range doc.Cases {
		tc := harness.TestCase{
			ID:                c.ID,
			Name:              c.Name,
			Question:          c.Question,
			ExpectedAnswer:    c.ExpectedAnswer,
			AcceptableAnswers: c.AcceptableAnswers,
			AnswerType:        c.AnswerType,
			Source:            c.Source.audioSource(),
			Validation:        c.validationConfig(defaultPreset),
		}
		if tc.AnswerType == "" {
			tc.AnswerType = validate.AnswerFreeText
		}
		suite.Cases = append(suite.Cases, tc)
	}
	return suite, nil
}

// validateSuite checks a decoded suite document and returns a joined error
// listing every problem found.
func validateSuite(doc *suiteDoc) error {
	var errs []error

	if doc.ID == "" {
		errs = append(errs, errors.New("suite id is required"))
	}
	if doc.Repetitions < 0 {
		errs = append(errs, fmt.Errorf("repetitions %d must not be negative", doc.Repetitions))
	}
	if len(doc.Cases) == 0 {
		errs = append(errs, errors.New("suite has no cases"))
	}

	idsSeen := make(map[string]int, len(doc.Cases))
	for i, c := range doc.Cases {
		prefix := fmt.Sprintf("cases[%d]", i)
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := idsSeen[c.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of cases[%d]", prefix, c.ID, prev))
			}
			idsSeen[c.ID] = i
		}
		if c.ExpectedAnswer == "" {
			errs = append(errs, fmt.Errorf("%s.expectedAnswer is required", prefix))
		}
		if c.AnswerType != "" && !c.AnswerType.IsValid() {
			errs = append(errs, fmt.Errorf("%s.answerType %q is invalid; valid values: free_text, place, person, numeric, scientific", prefix, c.AnswerType))
		}
		if c.Preset != "" && !c.Preset.IsValid() {
			errs = append(errs, fmt.Errorf("%s.preset %q is invalid; valid values: strict, standard, lenient", prefix, c.Preset))
		}
		if c.Preset != "" && c.Validation != nil {
			errs = append(errs, fmt.Errorf("%s: preset and validation are mutually exclusive", prefix))
		}
		errs = append(errs, validateSource(prefix, c.Source)...)
	}

	return errors.Join(errs...)
}

func validateSource(prefix string, src sourceDoc) []error {
	var errs []error
	switch src.Type {
	case "tts":
		if src.Provider == "" {
			errs = append(errs, fmt.Errorf("%s.source.provider is required when type is tts", prefix))
		}
	case "file":
		if src.Path == "" {
			errs = append(errs, fmt.Errorf("%s.source.path is required when type is file", prefix))
		}
	case "resource":
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("%s.source.name is required when type is resource", prefix))
		}
	case "":
		errs = append(errs, fmt.Errorf("%s.source.type is required", prefix))
	default:
		errs = append(errs, fmt.Errorf("%s.source.type %q is invalid; valid values: tts, file, resource", prefix, src.Type))
	}
	return errs
}

// audioSource converts a validated source block into its generator variant.
func (s sourceDoc) audioSource() generator.AudioSource {
	switch s.Type {
	case "file":
		return generator.SourceFile{Path: s.Path}
	case "resource":
		ext := s.Extension
		if ext == "" {
			ext = "wav"
		}
		return generator.SourceResource{Name: s.Name, Extension: ext}
	default:
		// The YAML voice field is the provider-specific voice ID; backends
		// resolve the full profile from it.
		return generator.SourceTTS{Provider: s.Provider, Voice: tts.VoiceProfile{ID: s.Voice}}
	}
}

// validationConfig resolves the case's validation settings: an explicit block
// wins, then the case preset, then the suite-wide default.
func (c caseDoc) validationConfig(defaultPreset Preset) validate.ValidationConfig {
	if c.Validation != nil {
		return *c.Validation
	}
	preset := c.Preset
	if preset == "" {
		preset = defaultPreset
	}
	return PresetConfig(preset)
}

// PresetConfig returns the canonical validation configuration for a preset.
// Unrecognised or empty presets resolve to standard.
func PresetConfig(p Preset) validate.ValidationConfig {
	switch p {
	case PresetStrict:
		return validate.StrictConfig()
	case PresetLenient:
		return validate.LenientConfig()
	default:
		return validate.StandardConfig()
	}
}
