package config

import "strings"

// Text keys. Config files use the same snake_case names under texts.<lang>.
const (
	TextTaskNoPermission     = "task_no_permission"
	TextTaskStatusNone       = "task_status_none"
	TextTaskStatusText       = "task_status_text"
	TextTaskCanceled         = "task_canceled"
	TextTaskAlreadyCanceled  = "task_already_canceled"
	TextTaskTestStart        = "task_test_start"
	TextTaskAlreadyScheduled = "task_already_scheduled"
	TextEmbedTitle           = "embed_title"
	TextEmbedDescription     = "embed_description"
	TextButtonLabel          = "button_label"
	TextRoleDisabled         = "role_disabled"
	TextRoleNotFound         = "role_not_found"
	TextRoleAdded            = "role_added"
	TextRoleRemoved          = "role_removed"
	TextRoleChangeError      = "role_change_error"
	TextRoleSlowDown         = "role_slow_down"
	TextGenericError         = "generic_error"
)

const DefaultLang = "en"

var builtinTexts = map[string]string{
	TextTaskNoPermission:    "❌ You are not allowed to use this command.",
	TextTaskStatusNone:      "ℹ️ No reminder is scheduled.",
	TextTaskStatusText:      "⏳ Next reminder in {minutes} min {seconds} s.",
	TextTaskCanceled:        "🛑 Reminder canceled.",
	TextTaskAlreadyCanceled: "ℹ️ There is no reminder to cancel.",
	TextTaskTestStart:       "🧪 Test reminder scheduled in {minutes} min {seconds} s.",
	TextEmbedTitle:          "⏰ Time to bump!",
	TextEmbedDescription:    "The server can be bumped again. Use `/bump` now!",
	TextButtonLabel:         "🔔 Toggle reminder role",
	TextRoleDisabled:        "ℹ️ Role mentions are disabled.",
	TextRoleNotFound:        "❌ The reminder role does not exist.",
	TextRoleAdded:           "✅ You will now be pinged for bump reminders.",
	TextRoleRemoved:         "✅ You will no longer be pinged for bump reminders.",
	TextRoleChangeError:     "❌ Could not change your role. Please try again later.",
	TextGenericError:        "❌ Something went wrong.",
}

// fallbacks are consulted when a key is missing in every configured language.
var fallbacks = map[string]string{
	TextTaskAlreadyScheduled: TextTaskTestStart,
	TextRoleSlowDown:         TextRoleChangeError,
}

// Catalog resolves text templates per language.
//
// Lookup order for a key: texts.<lang>, texts.<base lang> ("pt" for "pt-br"),
// texts.en, built-in English, then the key's fallback key.
type Catalog struct {
	langs map[string]map[string]string
}

func NewCatalog(texts map[string]map[string]string) *Catalog {
	langs := make(map[string]map[string]string, len(texts))
	for lang, m := range texts {
		cp := make(map[string]string, len(m))
		for k, v := range m {
			cp[TextKey(k)] = v
		}
		langs[normLang(lang)] = cp
	}
	return &Catalog{langs: langs}
}

// TextKey maps a camelCase key ("taskStatusText") to its snake_case form.
// snake_case keys pass through unchanged.
func TextKey(k string) string {
	k = strings.TrimSpace(k)
	var b strings.Builder
	b.Grow(len(k) + 4)
	for i, r := range k {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ResolveLang picks the configured language, else the caller's locale, else en.
func ResolveLang(configured, locale string) string {
	if l := normLang(configured); l != "" {
		return l
	}
	if l := normLang(locale); l != "" {
		return l
	}
	return DefaultLang
}

func normLang(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
}

// Texts is a Catalog bound to one language.
type Texts struct {
	c    *Catalog
	lang string
}

func (c *Catalog) For(lang string) Texts {
	return Texts{c: c, lang: normLang(lang)}
}

func (t Texts) Lang() string { return t.lang }

func (t Texts) Get(key string) string {
	if v, ok := t.lookup(key); ok {
		return v
	}
	if fb, ok := fallbacks[key]; ok {
		if v, ok := t.lookup(fb); ok {
			return v
		}
	}
	return key
}

// Format returns Get(key) with {name} placeholders replaced.
func (t Texts) Format(key string, kv ...string) string {
	s := t.Get(key)
	if len(kv) < 2 {
		return s
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

func (t Texts) lookup(key string) (string, bool) {
	if t.c != nil {
		for _, l := range t.chain() {
			if v, ok := t.c.langs[l][key]; ok && v != "" {
				return v, true
			}
		}
	}
	v, ok := builtinTexts[key]
	return v, ok
}

func (t Texts) chain() []string {
	out := make([]string, 0, 3)
	if t.lang != "" {
		out = append(out, t.lang)
		if base, _, ok := strings.Cut(t.lang, "-"); ok && base != "" {
			out = append(out, base)
		}
	}
	if t.lang != DefaultLang {
		out = append(out, DefaultLang)
	}
	return out
}
