package config

import "testing"

func TestResolveLang(t *testing.T) {
	tests := []struct {
		configured, locale, want string
	}{
		{"DE", "fr", "de"},
		{"", "pt-BR", "pt-br"},
		{"", "", "en"},
		{"  ", "en_US", "en-us"},
	}
	for _, tt := range tests {
		if got := ResolveLang(tt.configured, tt.locale); got != tt.want {
			t.Fatalf("ResolveLang(%q,%q)=%q want %q", tt.configured, tt.locale, got, tt.want)
		}
	}
}

func TestTextsFallbackChain(t *testing.T) {
	c := NewCatalog(map[string]map[string]string{
		"en": {TextEmbedTitle: "Bump time"},
		"pt": {TextEmbedTitle: "Hora do bump"},
		"DE": {TextButtonLabel: "Rolle umschalten"},
	})

	if got := c.For("pt-br").Get(TextEmbedTitle); got != "Hora do bump" {
		t.Fatalf("base language not used: %q", got)
	}
	if got := c.For("de").Get(TextEmbedTitle); got != "Bump time" {
		t.Fatalf("en override not used: %q", got)
	}
	if got := c.For("de").Get(TextButtonLabel); got != "Rolle umschalten" {
		t.Fatalf("lang key not used: %q", got)
	}
	if got := c.For("xx").Get(TextRoleAdded); got != builtinTexts[TextRoleAdded] {
		t.Fatalf("builtin not used: %q", got)
	}
}

func TestTextsKeyFallback(t *testing.T) {
	c := NewCatalog(map[string]map[string]string{"en": {TextTaskTestStart: "Test in 1 min"}})
	if got := c.For("en").Get(TextTaskAlreadyScheduled); got != "Test in 1 min" {
		t.Fatalf("fallback key not used: %q", got)
	}
	if got := c.For("en").Get("nope"); got != "nope" {
		t.Fatalf("unknown key should echo: %q", got)
	}
}

func TestTextsFormat(t *testing.T) {
	c := NewCatalog(map[string]map[string]string{
		"en": {TextTaskStatusText: "next in {minutes}m {seconds}s ({minutes})"},
	})
	got := c.For("en").Format(TextTaskStatusText, "minutes", "12", "seconds", "5")
	if got != "next in 12m 5s (12)" {
		t.Fatalf("got %q", got)
	}
}

func TestTextKey(t *testing.T) {
	tests := map[string]string{
		"taskNoPermission": TextTaskNoPermission,
		"taskStatusText":   TextTaskStatusText,
		"roleChangeError":  TextRoleChangeError,
		"embedDescription": TextEmbedDescription,
		TextTaskCanceled:   TextTaskCanceled,
		" buttonLabel ":    TextButtonLabel,
	}
	for in, want := range tests {
		if got := TextKey(in); got != want {
			t.Fatalf("TextKey(%q)=%q want %q", in, got, want)
		}
	}
}

func TestCatalogAcceptsCamelCaseKeys(t *testing.T) {
	c := NewCatalog(map[string]map[string]string{
		"en": {"taskStatusNone": "nothing here", "roleAdded": "added"},
	})
	if got := c.For("en").Get(TextTaskStatusNone); got != "nothing here" {
		t.Fatalf("got %q", got)
	}
	if got := c.For("en").Get(TextRoleAdded); got != "added" {
		t.Fatalf("got %q", got)
	}
}
