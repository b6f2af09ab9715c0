// Package i18n selects the message printer for CLI output.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we support
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

// German strings for the operator-facing status lines.
var german = map[string]string{
	"State:      %s\n":                  "Zustand:    %s\n",
	"Since:      %s\n":                  "Seit:       %s\n",
	"Upstream:   %s\n":                  "Uplink:     %s\n",
	"Hotspot:    %s\n":                  "Hotspot:    %s\n",
	"Bridge:     %s\n":                  "Brücke:     %s\n",
	"Last error: %s\n":                  "Letzter Fehler: %s\n",
	"Next retry: %s (attempt %d)\n":     "Nächster Versuch: %s (Versuch %d)\n",
	"%d clients connected\n":            "%d Clients verbunden\n",
	"Configuration valid!\n":            "Konfiguration gültig!\n",
	"Stopping %s (PID: %s)...\n":        "Stoppe %s (PID: %s)...\n",
	"Stopped.\n":                        "Gestoppt.\n",
	"Started %s (PID: %s)\n":            "%s gestartet (PID: %s)\n",
	"Extender already %s.\n":            "Extender bereits %s.\n",
	"Extender %s in %s.\n":              "Extender %s in %s.\n",
	"Failed to connect to daemon: %v\n": "Verbindung zum Dienst fehlgeschlagen: %v\n",
}

func init() {
	for key, msg := range german {
		message.SetString(language.German, key, msg)
	}
}

// MatchLanguage returns the best supported language for an
// Accept-Language style list or a POSIX locale name.
func MatchLanguage(accept string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(accept)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	return message.NewPrinter(CLILanguage(os.Getenv))
}

// CLILanguage resolves LC_ALL, LC_MESSAGES then LANG through getenv.
func CLILanguage(getenv func(string) string) language.Tag {
	var lang string
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if lang = getenv(key); lang != "" {
			break
		}
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}

	// Strip encoding and modifier, e.g. de_DE.UTF-8@euro.
	if i := strings.IndexAny(lang, ".@"); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	tag, err := language.Parse(lang)
	if err != nil {
		return MatchLanguage(lang)
	}
	tag, _, _ = matcher.Match(tag)
	return tag
}
