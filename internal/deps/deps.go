// Package deps resolves the external engine binaries the dubbing stages
// shell out to, mirroring how the stages will invoke them so status output
// matches runtime behavior.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"mockingbird/internal/config"
)

// Requirement describes one external binary an enabled engine needs. AssetDir
// names the model or voice directory the binary is useless without; empty
// when the engine ships self-contained.
type Requirement struct {
	Name        string
	Command     string
	Description string
	AssetDir    string
}

// Status is the outcome of resolving one requirement. Path carries the
// absolute binary location when resolution succeeded.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Available   bool
	Detail      string
}

// ForConfig lists the binaries the active configuration will invoke. Engines
// toggled off contribute nothing, so operators only see checks for tools
// their fallback chains can actually reach.
func ForConfig(cfg *config.Config) []Requirement {
	eng := cfg.Engines
	var reqs []Requirement
	if eng.WhisperCppEnabled {
		reqs = append(reqs, Requirement{
			Name:        "whisper.cpp",
			Command:     eng.WhisperCppBinary,
			Description: "Local transcription fallback",
			AssetDir:    eng.WhisperCppModelDir,
		})
	}
	if eng.ArgosEnabled {
		reqs = append(reqs, Requirement{
			Name:        "Argos Translate",
			Command:     eng.ArgosBinary,
			Description: "Local translation fallback",
		})
	}
	if eng.PiperEnabled {
		reqs = append(reqs, Requirement{
			Name:        "Piper",
			Command:     eng.PiperBinary,
			Description: "Local speech synthesis fallback",
			AssetDir:    eng.PiperVoiceDir,
		})
	}
	return reqs
}

// CheckBinaries resolves every requirement in order. A binary that resolves
// but is missing its asset directory reports unavailable, because the stage
// would fail the same way at run time.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = resolve(req)
	}
	return results
}

func resolve(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}

	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Path = resolved

	if dir := strings.TrimSpace(req.AssetDir); dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			status.Detail = fmt.Sprintf("model directory %q missing", dir)
			return status
		}
		if !info.IsDir() {
			status.Detail = fmt.Sprintf("model path %q is not a directory", dir)
			return status
		}
	}

	status.Available = true
	return status
}
