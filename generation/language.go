package generation

import (
	"slices"

	"golang.org/x/text/language"

	"github.com/gogpu/retouch/backend"
)

// modelLanguages returns the languages offered by model id.
func modelLanguages(models []backend.ModelInfo, id string) []string {
	for _, m := range models {
		if m.ID == id {
			return m.Languages
		}
	}
	return nil
}

// pickLanguage keeps preferred when the model offers it and otherwise
// falls back to the model's first language. It returns "" for a model
// without languages.
func pickLanguage(models []backend.ModelInfo, id, preferred string) string {
	langs := modelLanguages(models, id)
	if len(langs) == 0 {
		return ""
	}
	if preferred != "" && slices.Contains(langs, preferred) {
		return preferred
	}
	return langs[0]
}

// matchLanguage resolves want against the offered languages. An exact
// string match wins; otherwise BCP 47 matching is used, so "en-US" selects
// an offered "en". Offered entries that are not valid tags only match
// exactly.
func matchLanguage(offered []string, want string) (string, bool) {
	if slices.Contains(offered, want) {
		return want, true
	}
	wantTag, err := language.Parse(want)
	if err != nil {
		return "", false
	}
	var (
		tags  []language.Tag
		names []string
	)
	for _, o := range offered {
		t, err := language.Parse(o)
		if err != nil {
			continue
		}
		tags = append(tags, t)
		names = append(names, o)
	}
	if len(tags) == 0 {
		return "", false
	}
	_, idx, conf := language.NewMatcher(tags).Match(wantTag)
	if conf < language.High {
		return "", false
	}
	return names[idx], true
}
