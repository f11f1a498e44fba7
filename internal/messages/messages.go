// Package messages holds the user-facing strings returned in API bodies.
package messages

import "fmt"

const (
	MissingAPIKey   = "missing_api_key"
	InvalidAPIKey   = "invalid_api_key"
	RateLimited     = "rate_limited"
	InvalidRequest  = "invalid_request"
	InvalidType     = "invalid_type"
	NoUpdatePlugin  = "no_update_plugin"
	NoUpdateTheme   = "no_update_theme"
	NoUpdateCore    = "no_update_core"
	FailedPlugin    = "upgrade_failed_plugin"
	FailedTheme     = "upgrade_failed_theme"
	FailedCore      = "upgrade_failed_core"
	UpdateSucceeded = "update_succeeded"
	PingOK          = "ping_ok"
	TooManyRequests = "too_many_requests"
	DetailsNotFound = "details_not_found"
)

var tables = map[string]map[string]string{
	"en": {
		MissingAPIKey:   "Missing API key",
		InvalidAPIKey:   "Invalid API key",
		RateLimited:     "Too many failed attempts",
		InvalidRequest:  "Invalid request body",
		InvalidType:     "Invalid update type",
		NoUpdatePlugin:  "No update available for this plugin",
		NoUpdateTheme:   "No update available for this theme",
		NoUpdateCore:    "WordPress is already at the latest version",
		FailedPlugin:    "Plugin update failed",
		FailedTheme:     "Theme update failed",
		FailedCore:      "WordPress update failed",
		UpdateSucceeded: "%s updated successfully",
		PingOK:          "Webmaster Monitor connected successfully",
		TooManyRequests: "Too many requests, try again later",
		DetailsNotFound: "No details found for this slug",
	},
	"it": {
		MissingAPIKey:   "API key mancante",
		InvalidAPIKey:   "API key non valida",
		RateLimited:     "Troppi tentativi falliti",
		InvalidRequest:  "Richiesta non valida",
		InvalidType:     "Tipo di aggiornamento non valido",
		NoUpdatePlugin:  "Nessun aggiornamento disponibile per questo plugin",
		NoUpdateTheme:   "Nessun aggiornamento disponibile per questo tema",
		NoUpdateCore:    "WordPress e' gia' aggiornato all'ultima versione",
		FailedPlugin:    "Aggiornamento plugin fallito",
		FailedTheme:     "Aggiornamento tema fallito",
		FailedCore:      "Aggiornamento WordPress fallito",
		UpdateSucceeded: "%s aggiornato con successo",
		PingOK:          "Webmaster Monitor connesso correttamente",
		TooManyRequests: "Troppe richieste, riprova piu' tardi",
		DetailsNotFound: "Nessun dettaglio trovato per questo slug",
	},
}

// Get looks key up for locale, falling back to English and then to the key
// itself.
func Get(locale, key string, args ...any) string {
	msg, ok := tables[locale][key]
	if !ok {
		msg, ok = tables["en"][key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}
