// internal/web/build_info.go
package web

import (
    "runtime"
    "runtime/debug"

    "github.com/gin-gonic/gin"
)

// BuildInfo holds build-time information
type BuildInfo struct {
    Version    string   `json:"version"`
    GitCommit  string   `json:"git_commit"`
    BuildTime  string   `json:"build_time"`
    GoVersion  string   `json:"go_version"`
    GoOS       string   `json:"go_os"`
    GoArch     string   `json:"go_arch"`
    ModuleInfo []Module `json:"modules"`
}

type Module struct {
    Path    string `json:"path"`
    Version string `json:"version"`
    Replace string `json:"replace,omitempty"`
}

// These variables will be set at build time using -ldflags
var (
    Version   = "dev"
    GitCommit = "unknown"
    BuildTime = "unknown"
)

func (s *Server) getBuildInfo(c *gin.Context) {
    c.JSON(200, gin.H{"data": currentBuildInfo()})
}

func currentBuildInfo() BuildInfo {
    return BuildInfo{
        Version:    Version,
        GitCommit:  GitCommit,
        BuildTime:  BuildTime,
        GoVersion:  runtime.Version(),
        GoOS:       runtime.GOOS,
        GoArch:     runtime.GOARCH,
        ModuleInfo: getModuleInfo(),
    }
}

func getModuleInfo() []Module {
    info, ok := debug.ReadBuildInfo()
    if !ok {
        return nil
    }

    modules := make([]Module, 0, len(info.Deps))
    for _, dep := range info.Deps {
        module := Module{Path: dep.Path, Version: dep.Version}
        if dep.Replace != nil {
            module.Replace = dep.Replace.Path
        }
        modules = append(modules, module)
    }
    return modules
}
