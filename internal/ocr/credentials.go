package ocr

import (
	"os"

	"google.golang.org/api/option"
)

// googleClientOptions resolves credentials from the environment in the same
// order as the rest of the tool: inline JSON, then a key file, then
// Application Default Credentials. ok is false when the ADC fallback is
// used.
func googleClientOptions(extra ...option.ClientOption) (opts []option.ClientOption, ok bool) {
	opts = append(opts, extra...)
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return append(opts, option.WithCredentialsJSON([]byte(credJSON))), true
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return append(opts, option.WithCredentialsFile(credFile)), true
	}
	return opts, false
}
