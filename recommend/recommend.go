package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mdobak/go-xerrors"
	"github.com/tidwall/gjson"

	"voice-mood/models"
	"voice-mood/utils"
)

// doubledToken matches a key or value wrapped in doubled quotes (""tips"")
// between JSON delimiters. Legitimate empty strings ("url": "") have no
// closing pair and are left alone.
var doubledToken = regexp.MustCompile(`([{\[,:]\s*)""([^"]*)""(\s*[:,\]}])`)

const systemPrompt = "You answer as a concise JSON-generating assistant."

const promptTemplate = `You are a digital wellness coach for a mental health app.
Given scores:
- Depression: %g
- Anxiety: %g
- Stress: %g
- Mood: %s

Respond with this JSON, and ONLY this JSON:
{
  "meditations": [{"title": "...", "url": "..."}, ...],
  "musics": [{"title": "...","url": "..."},...],
  "quotes": ["...","..."],
  "affirmations": ["...","..."],
  "tips": ["...","..."]
}
No explanation, comments, or markdown.`

var ErrUnparsable = errors.New("could not parse recommendations")

// Service asks a Generator for recommendations and falls back to a static
// set whenever that fails.
type Service struct {
	generator Generator
	timeout   time.Duration
	logger    *slog.Logger
}

// NewService accepts a nil generator, in which case only the fallback is served.
func NewService(generator Generator, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Service{generator: generator, timeout: timeout, logger: utils.GetLogger()}
}

func BuildPrompt(req models.RecommendationRequest) string {
	mood := strings.TrimSpace(req.Mood)
	if mood == "" {
		mood = "Neutral"
	}
	return fmt.Sprintf(promptTemplate, req.Depression, req.Anxiety, req.Stress, mood)
}

// Recommend never fails; generator errors are logged and replaced by Fallback.
func (s *Service) Recommend(ctx context.Context, req models.RecommendationRequest) models.Recommendations {
	if s.generator == nil {
		return Fallback()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.generator.Generate(ctx, BuildPrompt(req))
	if err == nil {
		var recs models.Recommendations
		recs, err = Parse(text)
		if err == nil {
			return recs
		}
	}

	s.logger.WarnContext(ctx, "recommendation generation failed, serving fallback",
		slog.Any("error", xerrors.New(err)),
	)
	return Fallback()
}

// Parse pulls the first JSON object out of text and reads the five lists.
func Parse(text string) (models.Recommendations, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.Recommendations{}, fmt.Errorf("%w: no JSON object", ErrUnparsable)
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		// doubled quotes are a common model slip
		raw = repairDoubledQuotes(raw)
		if !gjson.Valid(raw) {
			return models.Recommendations{}, fmt.Errorf("%w: invalid JSON", ErrUnparsable)
		}
	}

	doc := gjson.Parse(raw)
	recs := models.Recommendations{
		Meditations:  suggestions(doc.Get("meditations")),
		Musics:       suggestions(doc.Get("musics")),
		Quotes:       strs(doc.Get("quotes")),
		Affirmations: strs(doc.Get("affirmations")),
		Tips:         strs(doc.Get("tips")),
	}
	if len(recs.Meditations)+len(recs.Musics)+len(recs.Quotes)+len(recs.Affirmations)+len(recs.Tips) == 0 {
		return models.Recommendations{}, fmt.Errorf("%w: empty response", ErrUnparsable)
	}
	return recs, nil
}

// repairDoubledQuotes runs to a fixed point because adjacent tokens share the
// delimiter between them.
func repairDoubledQuotes(raw string) string {
	for {
		next := doubledToken.ReplaceAllString(raw, `$1"$2"$3`)
		if next == raw {
			return raw
		}
		raw = next
	}
}

func suggestions(list gjson.Result) []models.Suggestion {
	out := []models.Suggestion{}
	list.ForEach(func(_, item gjson.Result) bool {
		title := strings.TrimSpace(item.Get("title").String())
		if title != "" {
			out = append(out, models.Suggestion{Title: title, URL: item.Get("url").String()})
		}
		return true
	})
	return out
}

func strs(list gjson.Result) []string {
	out := []string{}
	list.ForEach(func(_, item gjson.Result) bool {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

func Fallback() models.Recommendations {
	return models.Recommendations{
		Meditations: []models.Suggestion{
			{Title: "Practice Mindfulness", URL: "https://www.youtube.com/embed/O-6f5wQXSu8"},
			{Title: "Deep Breathing", URL: "https://youtu.be/acUZdGd_3Dg?si=Fym8bGyVpDbHdE97"},
		},
		Musics: []models.Suggestion{
			{Title: "Calm Piano", URL: "https://youtu.be/hlWiI4xVXKY?si=Hpgf_9TGtkBU8ZAY"},
			{Title: "Nature Sounds", URL: "https://www.youtube.com/embed/eKFTSSKCzWA"},
		},
		Quotes: []string{
			"Do something today that your future self will thank you for.",
			"It always seems impossible until it's done.",
		},
		Affirmations: []string{
			"You are enough.",
			"Breathe, and let go.",
		},
		Tips: []string{
			"Take a short mindful walk outdoors.",
			"Try 5 minutes of deep breathing.",
		},
	}
}
