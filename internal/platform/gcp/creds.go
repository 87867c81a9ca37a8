package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// Credential variables, checked in order. Either may hold inline
// service-account JSON or a key file path. With neither set the client
// libraries fall back to application default credentials.
var credentialEnv = []string{"GOOGLE_APPLICATION_CREDENTIALS_JSON", "GOOGLE_APPLICATION_CREDENTIALS"}

type credentialSource string

const (
	credentialsDefault credentialSource = "application-default"
	credentialsInline  credentialSource = "inline-json"
	credentialsFile    credentialSource = "key-file"
)

// clientOptions resolves OCR client credentials through getenv.
func clientOptions(getenv func(string) string) ([]option.ClientOption, credentialSource) {
	for _, key := range credentialEnv {
		v := strings.TrimSpace(getenv(key))
		switch {
		case v == "":
			continue
		case strings.HasPrefix(v, "{"):
			return []option.ClientOption{option.WithCredentialsJSON([]byte(v))}, credentialsInline
		default:
			return []option.ClientOption{option.WithCredentialsFile(v)}, credentialsFile
		}
	}
	return nil, credentialsDefault
}

func envClientOptions() ([]option.ClientOption, credentialSource) {
	return clientOptions(os.Getenv)
}

var ocrTextCleaner = strings.NewReplacer(
	"\u00a0", " ", // no-break space
	"\u00ad", "", // soft hyphen
	"\u200b", "", // zero-width space
	"\ufeff", "",
)

// cleanOCRText drops invisible characters OCR engines leave in recognized
// text and collapses whitespace runs to single spaces.
func cleanOCRText(s string) string {
	return strings.Join(strings.Fields(ocrTextCleaner.Replace(s)), " ")
}
