package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/skillscope/skillscope/internal/ai"
	"github.com/skillscope/skillscope/internal/util"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 300

type jsonGenerator interface {
	GenerateJSON(ctx context.Context, system, prompt string, schema *genai.Schema) (string, error)
}

// Extractor implements ai.Extractor on top of Gemini's JSON response mode.
type Extractor struct {
	generator jsonGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewExtractor(generator jsonGenerator, logger *zap.Logger, maxLogLength int) *Extractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Extractor{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// responseSchema constrains the model to one entry per posting with a closed
// education label set.
var responseSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"index": {
				Type:        genai.TypeInteger,
				Description: "Position of the description within the batch, starting at 0.",
			},
			"skills": {
				Type:        genai.TypeArray,
				Description: "Competencies required by the posting. Atomic labels, no sentences.",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
			"education_level": {
				Type:        genai.TypeString,
				Description: "Minimum diploma implied by the posting.",
				Enum:        ai.EducationLevels,
			},
		},
		Required: []string{"index", "skills", "education_level"},
	},
}

// Extract submits one batch of descriptions and parses the model's answer.
// Entries whose index does not map back to a posting in the batch are a
// protocol violation and are dropped.
func (e *Extractor) Extract(ctx context.Context, jobTitle string, descriptions []string) ([]ai.Entry, error) {
	if len(descriptions) == 0 {
		return nil, errors.New("batch must not be empty")
	}

	system := buildSystemInstruction(jobTitle)
	prompt := buildBatchPrompt(descriptions)

	e.logger.Debug("gemini extraction request",
		zap.Int("batch_size", len(descriptions)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", util.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateJSON(ctx, system, prompt, responseSchema)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("gemini extraction response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", util.TruncateForLog(raw, e.maxLogLen)),
	)

	entries, err := e.parse(raw, len(descriptions))
	if err != nil {
		e.logger.Error("unparsable gemini response",
			zap.Error(err),
			zap.String("raw_response", util.TruncateForLog(raw, e.maxLogLen)),
		)
		return nil, err
	}

	return entries, nil
}

func buildSystemInstruction(jobTitle string) string {
	system := strings.ReplaceAll(promptTemplate, "{{JOB_TITLE}}", strings.TrimSpace(jobTitle))
	return strings.ReplaceAll(system, "{{EDUCATION_LEVELS}}", `"`+strings.Join(ai.EducationLevels, `", "`)+`"`)
}

func buildBatchPrompt(descriptions []string) string {
	var b strings.Builder
	for i, desc := range descriptions {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "%d: %s", i, strings.TrimSpace(desc))
	}
	return b.String()
}

type entryPayload struct {
	Index          int      `json:"index"`
	Skills         []string `json:"skills"`
	EducationLevel string   `json:"education_level"`
}

func (e *Extractor) parse(raw string, batchSize int) ([]ai.Entry, error) {
	var payload []entryPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	entries := make([]ai.Entry, 0, len(payload))
	for _, p := range payload {
		if p.Index < 0 || p.Index >= batchSize {
			e.logger.Warn("dropping entry with out-of-batch index",
				zap.Int("index", p.Index),
				zap.Int("batch_size", batchSize),
			)
			continue
		}

		level := strings.TrimSpace(p.EducationLevel)
		if level == "" {
			level = ai.EducationUnspecified
		}

		entries = append(entries, ai.Entry{
			Index:          p.Index,
			Skills:         p.Skills,
			EducationLevel: level,
		})
	}

	return entries, nil
}

// extractJSON strips markdown code fences some model revisions wrap around the
// payload even in JSON response mode.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
