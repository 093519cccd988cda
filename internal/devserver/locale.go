package devserver

import (
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// localePicker matches a request's Accept-Language header against the
// translation files shipped with the podlet. Loading the translations
// themselves is the outer composition's concern; only the pick happens here.
type localePicker struct {
	matcher language.Matcher
	tags    []language.Tag
}

func newLocalePicker(root string) *localePicker {
	tags := []language.Tag{language.English}

	files, err := filepath.Glob(filepath.Join(root, "locale", "*.json"))
	if err == nil {
		for _, file := range files {
			name := strings.TrimSuffix(filepath.Base(file), ".json")
			if tag, err := language.Parse(name); err == nil {
				tags = append(tags, tag)
			}
		}
	}

	return &localePicker{matcher: language.NewMatcher(tags), tags: tags}
}

func (lp *localePicker) pick(r *http.Request) string {
	accepted, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(accepted) == 0 {
		return lp.tags[0].String()
	}
	_, index, _ := lp.matcher.Match(accepted...)
	return lp.tags[index].String()
}
