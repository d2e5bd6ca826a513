package gemini

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// cliUserAgent mimics the Gemini CLI's own fingerprint, which Code Assist's
// abuse heuristics expect from every caller.
func cliUserAgent() string {
	return fmt.Sprintf("gemini-code-assist-cli/1.0.0 (%s; %s) %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// applyDefaultHeaders sets the fingerprint, auth, and project headers Code
// Assist requires on every call.
func applyDefaultHeaders(req *http.Request, bearer, projectID string) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("User-Agent", cliUserAgent())

	gv := runtime.Version()
	if strings.HasPrefix(gv, "go") {
		gv = gv[2:]
	}
	req.Header.Set("X-Goog-Api-Client", "gl-go/"+gv)
	req.Header.Set("Client-Metadata", "ideType=IDE_UNSPECIFIED,platform=PLATFORM_UNSPECIFIED,pluginType=GEMINI")

	if projectID != "" && req.Header.Get("X-Goog-User-Project") == "" {
		req.Header.Set("X-Goog-User-Project", projectID)
	}
}
