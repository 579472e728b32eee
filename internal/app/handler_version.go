package app

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/balancedhttp/core/internal/core/constants"
	"github.com/balancedhttp/core/internal/version"
)

// VersionResponse is the JSON body of the built-in GET /version/ endpoint
// (ss6, "returns a JSON object with component versions").
type VersionResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func (a *Application) versionHandler(w http.ResponseWriter, r *http.Request) {
	resp := VersionResponse{
		Name:      version.Name,
		Version:   version.Version,
		Commit:    version.Commit,
		BuildDate: version.Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
